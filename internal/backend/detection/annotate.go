package detection

import (
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

const (
	boxLineWidth = 5
	labelOffsetY = 10
)

var (
	boxColor   = color.RGBA{R: 255, G: 255, A: 255}
	labelColor = color.White
)

// Label is the caption drawn above a detection, e.g. "pothole 0.87"
func Label(d Detection) string {
	name := d.ClassName
	if name == "" {
		name = fmt.Sprintf("class %d", d.ClassID)
	}
	return fmt.Sprintf("%s %.2f", name, d.Confidence)
}

// Annotate draws a box and a label for every detection onto a copy of img
func Annotate(img image.Image, detections []Detection) image.Image {
	dc := gg.NewContextForImage(img)
	dc.SetFontFace(basicfont.Face7x13)
	dc.SetLineWidth(boxLineWidth)

	for _, d := range detections {
		r := d.Box.Rect().Canon()
		dc.SetColor(boxColor)
		dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
		dc.Stroke()

		dc.SetColor(labelColor)
		dc.DrawString(Label(d), float64(r.Min.X), float64(r.Min.Y-labelOffsetY))
	}
	return dc.Image()
}
