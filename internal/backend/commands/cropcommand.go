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

// CropParams describes the region of interest of a frame, e.g. the road without
// the dashcam hood. Without x and y the region is centered.
type CropParams struct {
	Height   int
	Width    int
	X        int
	Y        int
	Centered bool
}

// NewCropParamsFromMap creates CropParams from a generic map
func NewCropParamsFromMap(params map[string]any) (*CropParams, error) {
	if err := commandstructure.ValidateRequiredParams(params, []string{"height", "width"}); err != nil {
		return nil, err
	}

	height := commandstructure.GetIntParam(params, "height", 0)
	width := commandstructure.GetIntParam(params, "width", 0)
	if height <= 0 {
		return nil, fmt.Errorf("height must be positive, got %d", height)
	}
	if width <= 0 {
		return nil, fmt.Errorf("width must be positive, got %d", width)
	}

	_, hasX := params["x"]
	_, hasY := params["y"]
	x := commandstructure.GetIntParam(params, "x", 0)
	y := commandstructure.GetIntParam(params, "y", 0)
	if x < 0 || y < 0 {
		return nil, fmt.Errorf("crop offset must not be negative, got %d,%d", x, y)
	}

	return &CropParams{
		Height:   height,
		Width:    width,
		X:        x,
		Y:        y,
		Centered: !hasX && !hasY,
	}, nil
}

// CropCommand cuts the configured region out of a PNG frame
type CropCommand struct {
	name   string
	params *CropParams
}

// NewCropCommand creates a new crop command from configuration parameters
func NewCropCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewCropParamsFromMap(params)
	if err != nil {
		return nil, err
	}

	return &CropCommand{
		name:   "CropCommand",
		params: typedParams,
	}, nil
}

// Name returns the command name
func (c *CropCommand) Name() string {
	return c.name
}

// Execute crops the frame; the region is clipped to the frame bounds
func (c *CropCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	bounds := img.Bounds()
	region := c.region(bounds)
	if region.Empty() {
		return nil, fmt.Errorf("crop region %v lies outside the %dx%d frame", region, bounds.Dx(), bounds.Dy())
	}
	if region == bounds {
		slog.Debug("CropCommand: region covers the whole frame; skipping")
		return imageData, nil
	}

	cropped := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, region.Min, draw.Src)

	slog.Debug("CropCommand: cropped frame",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"region", region.String())

	out, err := encodePNG(cropped)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cropped PNG image: %w", err)
	}
	return out, nil
}

func (c *CropCommand) region(bounds image.Rectangle) image.Rectangle {
	width := min(c.params.Width, bounds.Dx())
	height := min(c.params.Height, bounds.Dy())

	x0, y0 := c.params.X, c.params.Y
	if c.params.Centered {
		x0 = (bounds.Dx() - width) / 2
		y0 = (bounds.Dy() - height) / 2
	}
	r := image.Rect(x0, y0, x0+width, y0+height).Add(bounds.Min)
	return r.Intersect(bounds)
}

// GetParams returns the typed parameters
func (c *CropCommand) GetParams() *CropParams {
	return c.params
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("CropCommand", NewCropCommand); err != nil {
		panic(fmt.Sprintf("failed to register CropCommand: %v", err))
	}
}
