package commands

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/jo-hoe/roadwatch/internal/backend/commandstructure"
)

func TestNormalizeCommand_PNGPassThrough(t *testing.T) {
	cmd, err := NewNormalizeCommand(nil)
	if err != nil {
		t.Fatalf("NewNormalizeCommand error: %v", err)
	}
	input := createTestPNG(t, 4, 3)

	out, err := cmd.Execute(input)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Error("expected PNG input to be returned unchanged")
	}
}

func TestNormalizeCommand_JPEGToPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode error: %v", err)
	}

	cmd, _ := NewNormalizeCommand(nil)
	out, err := cmd.Execute(buf.Bytes())
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if !hasPngSignature(out) {
		t.Fatal("expected PNG output")
	}
	got := decodeTestPNG(t, out)
	if got.Bounds().Dx() != 8 || got.Bounds().Dy() != 6 {
		t.Errorf("expected 8x6 output, got %dx%d", got.Bounds().Dx(), got.Bounds().Dy())
	}
}

func TestNormalizeCommand_SVG(t *testing.T) {
	explicit := []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="20" height="10"><rect x="0" y="0" width="20" height="10" fill="#ff0000"/></svg>`)
	noSize := []byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 20 10"><rect x="0" y="0" width="20" height="10" fill="#ff0000"/></svg>`)

	tests := []struct {
		name       string
		params     map[string]any
		input      []byte
		wantErr    bool
		wantWidth  int
		wantHeight int
	}{
		{name: "explicit size", input: explicit, wantWidth: 20, wantHeight: 10},
		{name: "fallback size", params: map[string]any{"svgFallbackWidth": 40, "svgFallbackHeight": 30}, input: noSize, wantWidth: 40, wantHeight: 30},
		{name: "no size and no fallback", input: noSize, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := NewNormalizeCommand(tt.params)
			if err != nil {
				t.Fatalf("NewNormalizeCommand error: %v", err)
			}
			out, err := cmd.Execute(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute error: %v", err)
			}
			img := decodeTestPNG(t, out)
			if img.Bounds().Dx() != tt.wantWidth || img.Bounds().Dy() != tt.wantHeight {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantWidth, tt.wantHeight, img.Bounds().Dx(), img.Bounds().Dy())
			}
		})
	}
}

func TestNormalizeCommand_InvalidData(t *testing.T) {
	cmd, _ := NewNormalizeCommand(nil)
	if _, err := cmd.Execute([]byte("definitely not an image")); err == nil {
		t.Error("expected error for undecodable input")
	}
	if _, err := cmd.Execute(nil); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestParseSvgExplicitSize_IgnoresStrokeWidth(t *testing.T) {
	data := []byte(`<svg stroke-width="3" width="12px" height="7">`)
	w, h, ok := parseSvgExplicitSize(data)
	if !ok || w != 12 || h != 7 {
		t.Errorf("expected 12x7, got %dx%d ok=%v", w, h, ok)
	}
}

func TestNormalizeCommand_Registered(t *testing.T) {
	if !commandstructure.DefaultRegistry.IsRegistered("NormalizeCommand") {
		t.Error("NormalizeCommand not registered in default registry")
	}
}
