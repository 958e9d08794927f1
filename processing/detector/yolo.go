package detector

import (
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"weldvision/internal/models"
)

// letterboxFill is the grey YOLOv5 pads its square inputs with.
var letterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox is the geometry of fitting a frame into a square model input
// with its aspect ratio kept. Model coordinates map back to the frame as
// (v - pad) / scale.
type letterbox struct {
	scale      float32
	padX, padY int
	width      int
	height     int
}

func newLetterbox(w, h, size int) letterbox {
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))

	return letterbox{
		scale:  float32(scale),
		padX:   (size - nw) / 2,
		padY:   (size - nh) / 2,
		width:  nw,
		height: nh,
	}
}

// letterboxImage resizes img into a size x size canvas, centred on grey.
func letterboxImage(img image.Image, size int) (*image.NRGBA, letterbox) {
	b := img.Bounds()
	lb := newLetterbox(b.Dx(), b.Dy(), size)

	dst := imaging.New(size, size, letterboxFill)
	resized := imaging.Resize(img, lb.width, lb.height, imaging.Linear)
	return imaging.Paste(dst, resized, image.Pt(lb.padX, lb.padY)), lb
}

// decodeParams describes a YOLOv5 output tensor laid out as
// [predictions][cx, cy, w, h, objectness, class scores...].
type decodeParams struct {
	numClasses int
	confidence float32
	iou        float32
	// padding removed from model coordinates before scaling
	padX, padY float32
	// scale from model input pixels to frame pixels
	scaleX, scaleY float32
	bounds         image.Rectangle
	maxDetections  int
}

type candidate struct {
	x1, y1, x2, y2 float32
	class          int
	score          float32
}

func decodeYOLOv5(out []float32, p decodeParams) []models.Detection {
	stride := 5 + p.numClasses
	if p.numClasses <= 0 {
		return nil
	}

	var cands []candidate

	for i := 0; i+stride <= len(out); i += stride {
		obj := out[i+4]
		if obj < p.confidence {
			continue
		}

		bestClass := 0
		bestProb := out[i+5]
		for k := 1; k < p.numClasses; k++ {
			if prob := out[i+5+k]; prob > bestProb {
				bestClass = k
				bestProb = prob
			}
		}

		score := obj * bestProb
		if score < p.confidence {
			continue
		}

		cx, cy, w, h := out[i], out[i+1], out[i+2], out[i+3]
		cands = append(cands, candidate{
			x1:    (cx - w/2 - p.padX) * p.scaleX,
			y1:    (cy - h/2 - p.padY) * p.scaleY,
			x2:    (cx + w/2 - p.padX) * p.scaleX,
			y2:    (cy + h/2 - p.padY) * p.scaleY,
			class: bestClass,
			score: score,
		})
	}

	kept := nms(cands, p.iou)

	dets := make([]models.Detection, 0, len(kept))
	for _, c := range kept {
		if p.maxDetections > 0 && len(dets) >= p.maxDetections {
			break
		}
		box := image.Rect(
			p.bounds.Min.X+int(c.x1), p.bounds.Min.Y+int(c.y1),
			p.bounds.Min.X+int(c.x2), p.bounds.Min.Y+int(c.y2),
		).Intersect(p.bounds)

		dets = append(dets, models.Detection{Box: box, Class: c.class, Confidence: c.score})
	}

	return dets
}

// nms keeps the highest scoring boxes, dropping any that overlap a kept box
// of the same class by more than threshold. The result is ordered by score.
func nms(cands []candidate, threshold float32) []candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].score > cands[j].score
	})

	suppressed := make([]bool, len(cands))
	kept := make([]candidate, 0, len(cands))

	for i := range cands {
		if suppressed[i] {
			continue
		}
		kept = append(kept, cands[i])

		for j := i + 1; j < len(cands); j++ {
			if suppressed[j] || cands[j].class != cands[i].class {
				continue
			}
			if overlap(cands[i], cands[j]) > threshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

// overlap is the intersection over union of two boxes.
func overlap(a, b candidate) float32 {
	w := math.Max(0, math.Min(float64(a.x2), float64(b.x2))-math.Max(float64(a.x1), float64(b.x1)))
	h := math.Max(0, math.Min(float64(a.y2), float64(b.y2))-math.Max(float64(a.y1), float64(b.y1)))
	inter := float32(w * h)

	areaA := (a.x2 - a.x1) * (a.y2 - a.y1)
	areaB := (b.x2 - b.x1) * (b.y2 - b.y1)
	union := areaA + areaB - inter

	if union <= 0 {
		return 0
	}
	return inter / union
}
