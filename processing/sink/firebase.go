package sink

import (
	"context"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"weldvision/internal/models"
)

type FirebaseParams struct {
	CredentialsPath string
	DatabaseURL     string
	Collection      string
}

// pusher is the part of *db.Ref the sink needs.
type pusher interface {
	Push(ctx context.Context, v interface{}) (*db.Ref, error)
}

// Firebase pushes each record as a new child of the collection node in a
// Firebase Realtime Database.
type Firebase struct {
	ref pusher
}

func NewFirebase(ctx context.Context, p FirebaseParams) (*Firebase, error) {
	if _, err := os.Stat(p.CredentialsPath); err != nil {
		return nil, errors.Wrapf(err, "service account credentials %s", p.CredentialsPath)
	}

	app, err := firebase.NewApp(ctx,
		&firebase.Config{DatabaseURL: p.DatabaseURL},
		option.WithCredentialsFile(p.CredentialsPath),
	)
	if err != nil {
		return nil, errors.Wrap(err, "initialize firebase app")
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "open realtime database")
	}

	return &Firebase{ref: client.NewRef(p.Collection)}, nil
}

func (f *Firebase) Append(ctx context.Context, rec models.DetectionRecord) error {
	_, err := f.ref.Push(ctx, rec)
	return errors.Wrap(err, "firebase push")
}

func (f *Firebase) Close() error { return nil }
