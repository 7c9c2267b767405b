package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"

	"github.com/jo-hoe/roadwatch/internal/backend/commandstructure"
)

const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// OrientationParams represents typed parameters for the orientation command
type OrientationParams struct {
	Orientation      string
	RotateWhenSquare bool
	Clockwise        bool
}

// NewOrientationParamsFromMap creates OrientationParams from a generic map
func NewOrientationParamsFromMap(params map[string]any) (*OrientationParams, error) {
	orientation := commandstructure.GetStringParam(params, "orientation", OrientationLandscape)
	if orientation != OrientationPortrait && orientation != OrientationLandscape {
		return nil, fmt.Errorf("invalid orientation: %s (must be 'portrait' or 'landscape')", orientation)
	}

	return &OrientationParams{
		Orientation:      orientation,
		RotateWhenSquare: commandstructure.GetBoolParam(params, "rotateWhenSquare", false),
		Clockwise:        commandstructure.GetBoolParam(params, "clockwise", true),
	}, nil
}

// OrientationCommand rotates frames by 90 degrees so they match the orientation the model was trained on.
// Phone uploads taken in portrait are the usual case.
type OrientationCommand struct {
	name   string
	params *OrientationParams
}

// NewOrientationCommand creates a new orientation command from configuration parameters
func NewOrientationCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewOrientationParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &OrientationCommand{name: "OrientationCommand", params: typedParams}, nil
}

// Name returns the command name
func (c *OrientationCommand) Name() string {
	return c.name
}

// Execute rotates the frame if its orientation differs from the configured one
func (c *OrientationCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width == height {
		if !c.params.RotateWhenSquare {
			return imageData, nil
		}
	} else if (height > width) == (c.params.Orientation == OrientationPortrait) {
		return imageData, nil
	}

	slog.Debug("OrientationCommand: rotating frame",
		"width", width,
		"height", height,
		"target", c.params.Orientation,
		"clockwise", c.params.Clockwise)

	out, err := encodePNG(rotate90(img, c.params.Clockwise))
	if err != nil {
		return nil, fmt.Errorf("failed to encode rotated PNG image: %w", err)
	}
	return out, nil
}

// GetParams returns the typed parameters
func (c *OrientationCommand) GetParams() *OrientationParams {
	return c.params
}

// rotate90 returns img rotated by 90 degrees
func rotate90(img image.Image, clockwise bool) *image.RGBA {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	src := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	dst := image.NewRGBA(image.Rect(0, 0, height, width))
	parallelRows(height, func(y int) {
		for x := 0; x < width; x++ {
			si := src.PixOffset(x, y)
			var di int
			if clockwise {
				// (x,y) -> (height-1-y, x)
				di = dst.PixOffset(height-1-y, x)
			} else {
				// (x,y) -> (y, width-1-x)
				di = dst.PixOffset(y, width-1-x)
			}
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	})
	return dst
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("OrientationCommand", NewOrientationCommand); err != nil {
		panic(fmt.Sprintf("failed to register OrientationCommand: %v", err))
	}
}
