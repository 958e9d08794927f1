package render

import "image/color"

// classColors is indexed by class so a label keeps its colour across frames.
var classColors = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},   // #FF3838
	{R: 255, G: 178, B: 29, A: 255},  // #FFB21D
	{R: 0, G: 194, B: 255, A: 255},   // #00C2FF
	{R: 72, G: 249, B: 10, A: 255},   // #48F90A
	{R: 132, G: 56, B: 255, A: 255},  // #8438FF
	{R: 255, G: 112, B: 31, A: 255},  // #FF701F
	{R: 0, G: 212, B: 187, A: 255},   // #00D4BB
	{R: 255, G: 55, B: 199, A: 255},  // #FF37C7
	{R: 207, G: 210, B: 49, A: 255},  // #CFD231
	{R: 100, G: 115, B: 255, A: 255}, // #6473FF
}

func classColor(class int) color.RGBA {
	if class < 0 {
		class = -class
	}
	return classColors[class%len(classColors)]
}
