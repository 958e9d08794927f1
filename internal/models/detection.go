package models

import (
	"image"
	"math"
	"time"
)

// TimestampLayout is ISO-8601 with microseconds and zone offset.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// UnknownLabel is substituted for class indices outside the labels table.
const UnknownLabel = "unknown"

// Detection is a single object found in a frame.
type Detection struct {
	Box   image.Rectangle
	Class int
	// Label is set when the detector names the object itself. It takes
	// precedence over the labels table.
	Label      string
	Confidence float32
}

// DetectionRecord is the persisted form of a Detection.
type DetectionRecord struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confianza"`
	Timestamp  string  `json:"timestamp"`
}

func NewDetectionRecord(label string, confidence float32, at time.Time) DetectionRecord {
	return DetectionRecord{
		Label:      label,
		Confidence: RoundConfidence(confidence),
		Timestamp:  at.Format(TimestampLayout),
	}
}

// RoundConfidence rounds to two decimals.
func RoundConfidence(c float32) float64 {
	return math.Round(float64(c)*100) / 100
}

// DetectionResult is the wire form returned by a remote detector. Box holds
// normalized [y1, x1, y2, x2] coordinates. Servers may omit class and only
// name the object.
type DetectionResult struct {
	Label      string    `json:"label"`
	Class      *int      `json:"class,omitempty"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

// ToDetection scales the normalized box to a frame of the given bounds.
// Without a class index the class is resolved from the label through labels,
// -1 when the label is not in the table. Results with a short box yield an
// empty rectangle.
func (r DetectionResult) ToDetection(bounds image.Rectangle, labels Labels) Detection {
	d := Detection{Label: r.Label, Confidence: r.Confidence}
	if r.Class != nil {
		d.Class = *r.Class
	} else {
		d.Class = labels.Index(r.Label)
	}
	if len(r.Box) < 4 {
		return d
	}

	w := float32(bounds.Dx())
	h := float32(bounds.Dy())

	d.Box = image.Rect(
		bounds.Min.X+int(r.Box[1]*w),
		bounds.Min.Y+int(r.Box[0]*h),
		bounds.Min.X+int(r.Box[3]*w),
		bounds.Min.Y+int(r.Box[2]*h),
	).Intersect(bounds)
	return d
}
