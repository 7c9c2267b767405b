package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/jo-hoe/roadwatch/internal/backend/commandstructure"
	xdraw "golang.org/x/image/draw"
)

// ScaleParams represents typed parameters for the scale command
type ScaleParams struct {
	Height  int
	Width   int
	Upscale bool
}

// NewScaleParamsFromMap creates ScaleParams from a generic map
func NewScaleParamsFromMap(params map[string]any) (*ScaleParams, error) {
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

	return &ScaleParams{
		Height:  height,
		Width:   width,
		Upscale: commandstructure.GetBoolParam(params, "upscale", false),
	}, nil
}

// ScaleCommand fits a PNG frame into a bounding box while preserving the aspect ratio.
// Frames that already fit are returned unchanged unless upscaling is enabled.
type ScaleCommand struct {
	name   string
	params *ScaleParams
}

// NewScaleCommand creates a new scale command from configuration parameters
func NewScaleCommand(params map[string]any) (commandstructure.Command, error) {
	typedParams, err := NewScaleParamsFromMap(params)
	if err != nil {
		return nil, err
	}
	return &ScaleCommand{name: "ScaleCommand", params: typedParams}, nil
}

// NewScaleCommandWithParams creates a new scale command from concrete typed parameters
func NewScaleCommandWithParams(width, height int, upscale bool) (*ScaleCommand, error) {
	typedParams, err := NewScaleParamsFromMap(map[string]any{
		"width":   width,
		"height":  height,
		"upscale": upscale,
	})
	if err != nil {
		return nil, err
	}
	return &ScaleCommand{name: "ScaleCommand", params: typedParams}, nil
}

// Name returns the command name
func (c *ScaleCommand) Name() string {
	return c.name
}

// Execute scales the frame to fit the configured bounding box
func (c *ScaleCommand) Execute(imageData []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG image: %w", err)
	}

	bounds := img.Bounds()
	scaledWidth, scaledHeight := computeScaledDimensions(bounds.Dx(), bounds.Dy(), c.params.Width, c.params.Height)
	if scaledWidth == bounds.Dx() && scaledHeight == bounds.Dy() {
		return imageData, nil
	}
	if !c.params.Upscale && scaledWidth > bounds.Dx() {
		slog.Debug("ScaleCommand: frame already fits; skipping",
			"width", bounds.Dx(),
			"height", bounds.Dy())
		return imageData, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, scaledWidth, scaledHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)

	slog.Debug("ScaleCommand: scaled frame",
		"original_width", bounds.Dx(),
		"original_height", bounds.Dy(),
		"scaled_width", scaledWidth,
		"scaled_height", scaledHeight)

	out, err := encodePNG(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scaled PNG image: %w", err)
	}
	return out, nil
}

// GetParams returns the typed parameters
func (c *ScaleCommand) GetParams() *ScaleParams {
	return c.params
}

// computeScaledDimensions returns the largest size with the original aspect ratio that fits the target
func computeScaledDimensions(originalWidth, originalHeight, targetWidth, targetHeight int) (int, int) {
	originalAspect := float64(originalWidth) / float64(originalHeight)
	targetAspect := float64(targetWidth) / float64(targetHeight)
	if originalAspect > targetAspect {
		return targetWidth, max(1, int(float64(targetWidth)/originalAspect))
	}
	return max(1, int(float64(targetHeight)*originalAspect)), targetHeight
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("ScaleCommand", NewScaleCommand); err != nil {
		panic(fmt.Sprintf("failed to register ScaleCommand: %v", err))
	}
}
