// Package sink delivers detection records to external stores.
package sink

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"weldvision/internal/models"
)

// Sink appends detection records to an external store.
type Sink interface {
	Append(ctx context.Context, rec models.DetectionRecord) error
	Close() error
}

// Log writes records to the logger. Used for dry runs without credentials.
type Log struct {
	logger *zap.SugaredLogger
}

func NewLog(logger *zap.SugaredLogger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Append(_ context.Context, rec models.DetectionRecord) error {
	l.logger.Infow("detection", "label", rec.Label, "confianza", rec.Confidence, "timestamp", rec.Timestamp)
	return nil
}

func (l *Log) Close() error { return nil }

// Multi fans each record out to every sink. One failing sink does not stop
// the others; the errors are combined.
type Multi []Sink

func (m Multi) Append(ctx context.Context, rec models.DetectionRecord) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Append(ctx, rec))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
