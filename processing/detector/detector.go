// Package detector holds the model backends that turn a frame into detections.
package detector

import (
	"context"
	"image"

	"weldvision/internal/models"
)

// Detector runs a detection model on a single frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
	Close() error
}

// Thresholder is implemented by detectors whose score threshold can change
// between frames.
type Thresholder interface {
	SetConfidence(c float32)
}
