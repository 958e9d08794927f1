package render

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"

	"weldvision/internal/models"
)

func grayFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x40
	}
	return img
}

func TestRenderNoDetectionsReturnsInput(t *testing.T) {
	o := NewOverlay(models.Labels{"Persona", "Casco", "Arco"})
	frame := grayFrame(64, 48)

	out := o.Render(frame, nil)
	test.That(t, out, test.ShouldEqual, frame)
}

func TestRenderDrawsBoxColour(t *testing.T) {
	o := NewOverlay(models.Labels{"Persona", "Casco", "Arco"})
	frame := grayFrame(200, 200)
	det := models.Detection{Box: image.Rect(50, 80, 150, 180), Class: 2, Confidence: 0.9}

	out := o.Render(frame, []models.Detection{det})
	test.That(t, out.Bounds(), test.ShouldResemble, frame.Bounds())

	// left edge, below the caption
	r, g, b, _ := out.At(50, 150).RGBA()
	want := classColor(2)
	test.That(t, uint8(r>>8), test.ShouldEqual, want.R)
	test.That(t, uint8(g>>8), test.ShouldEqual, want.G)
	test.That(t, uint8(b>>8), test.ShouldEqual, want.B)

	// the box interior and the input frame are untouched
	test.That(t, out.At(100, 160), test.ShouldResemble, color.RGBA{0x40, 0x40, 0x40, 0x40})
	test.That(t, frame.At(50, 150), test.ShouldResemble, color.RGBA{0x40, 0x40, 0x40, 0x40})
}

func TestCaptionUsesFallbackLabel(t *testing.T) {
	labels := models.Labels{"Persona", "Casco", "Arco"}
	o := NewOverlay(labels)

	test.That(t, o.Caption(models.Detection{Class: 1, Confidence: 0.456}), test.ShouldEqual, "Casco 0.46")
	test.That(t, o.Caption(models.Detection{Class: len(labels), Confidence: 0.5}), test.ShouldEqual, "unknown 0.50")

	frame := grayFrame(40, 40)
	out := o.Render(frame, []models.Detection{{Box: image.Rect(0, 0, 20, 20), Class: len(labels), Confidence: 0.5}})
	test.That(t, out, test.ShouldNotBeNil)
}

func TestClassColorWraps(t *testing.T) {
	test.That(t, classColor(len(classColors)), test.ShouldResemble, classColor(0))
	test.That(t, classColor(-1), test.ShouldResemble, classColor(1))
}
