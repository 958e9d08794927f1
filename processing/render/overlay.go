// Package render draws detections over frames.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"weldvision/internal/models"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Overlay draws boxes and captions for detections.
type Overlay struct {
	Labels    models.Labels
	LineWidth float64
	FontSize  float64
	TextColor color.Color

	face font.Face
}

func NewOverlay(labels models.Labels) *Overlay {
	o := &Overlay{
		Labels:    labels,
		LineWidth: 3,
		FontSize:  14,
		TextColor: color.White,
	}
	o.face = truetype.NewFace(labelFont, &truetype.Options{Size: o.FontSize})
	return o
}

// Caption is the text drawn above a detection box.
func (o *Overlay) Caption(d models.Detection) string {
	return fmt.Sprintf("%s %.2f", o.Labels.Name(d), d.Confidence)
}

// Render returns a copy of img with dets drawn on it, or img itself when
// there is nothing to draw.
func (o *Overlay) Render(img image.Image, dets []models.Detection) image.Image {
	if len(dets) == 0 {
		return img
	}

	dc := gg.NewContextForImage(img)
	dc.SetFontFace(o.face)

	for _, d := range dets {
		clr := classColor(d.Class)
		r := d.Box

		dc.SetColor(clr)
		dc.SetLineWidth(o.LineWidth)
		dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
		dc.Stroke()
	}

	// captions go on top so a later box never hides an earlier label
	for _, d := range dets {
		o.drawCaption(dc, d)
	}

	return dc.Image()
}

func (o *Overlay) drawCaption(dc *gg.Context, d models.Detection) {
	text := o.Caption(d)
	tw, th := dc.MeasureString(text)
	pad := 2.0

	x := float64(d.Box.Min.X)
	y := float64(d.Box.Min.Y) - th - 2*pad
	if y < 0 {
		// no room above the box, draw inside it
		y = float64(d.Box.Min.Y)
	}

	dc.SetColor(classColor(d.Class))
	dc.DrawRectangle(x, y, tw+2*pad, th+2*pad)
	dc.Fill()

	dc.SetColor(o.TextColor)
	dc.DrawStringAnchored(text, x+pad, y+pad, 0, 1)
}
