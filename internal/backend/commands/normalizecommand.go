package commands

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log/slog"
	"strings"

	"github.com/jo-hoe/roadwatch/internal/backend/commandstructure"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// hasPngSignature checks whether the provided data begins with a valid PNG signature
func hasPngSignature(data []byte) bool {
	return len(data) >= len(pngSignature) && bytes.Equal(data[:len(pngSignature)], pngSignature)
}

// NormalizeCommand converts any supported upload (JPEG, GIF, BMP, TIFF, WebP, SVG) to PNG
// so that later commands only deal with one format.
type NormalizeCommand struct {
	name              string
	svgFallbackWidth  int
	svgFallbackHeight int
}

// NewNormalizeCommand creates a new normalize command from configuration parameters
func NewNormalizeCommand(params map[string]any) (commandstructure.Command, error) {
	w := commandstructure.GetIntParam(params, "svgFallbackWidth", 0)
	h := commandstructure.GetIntParam(params, "svgFallbackHeight", 0)
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("svg fallback size must not be negative, got %dx%d", w, h)
	}

	return &NormalizeCommand{
		name:              "NormalizeCommand",
		svgFallbackWidth:  w,
		svgFallbackHeight: h,
	}, nil
}

// Name returns the command name
func (c *NormalizeCommand) Name() string {
	return c.name
}

func (c *NormalizeCommand) Execute(imageData []byte) ([]byte, error) {
	if hasPngSignature(imageData) {
		return imageData, nil
	}

	img, err := DecodeImage(imageData, c.svgFallbackWidth, c.svgFallbackHeight)
	if err != nil {
		return nil, err
	}

	out, err := encodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	slog.Debug("NormalizeCommand: conversion complete",
		"input_size_bytes", len(imageData),
		"output_size_bytes", len(out))
	return out, nil
}

// DecodeImage decodes any supported raster format, or rasterizes SVG input.
// SVG without explicit width and height is rendered at the fallback size;
// zero fallback values make such input an error.
func DecodeImage(data []byte, svgFallbackWidth, svgFallbackHeight int) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to decode image: empty input")
	}

	if isSVGData(data) {
		w, h, ok := parseSvgExplicitSize(data)
		if !ok {
			w, h = svgFallbackWidth, svgFallbackHeight
		}
		if w <= 0 || h <= 0 {
			return nil, fmt.Errorf("SVG has no explicit size and no fallback size is set")
		}
		return renderSVG(data, w, h)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	slog.Debug("decoded raster image",
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func init() {
	if err := commandstructure.DefaultRegistry.Register("NormalizeCommand", NewNormalizeCommand); err != nil {
		panic(fmt.Sprintf("failed to register NormalizeCommand: %v", err))
	}
}

// parseSvgExplicitSize extracts the width and height attributes of the root svg tag.
// viewBox is deliberately not treated as a pixel size.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	n := min(len(data), 8192)
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	tag := s[i:]
	if j := strings.Index(tag, ">"); j >= 0 {
		tag = tag[:j]
	}

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk {
		return w, h, true
	}
	return 0, 0, false
}

// parseNumericAttr returns the leading integer of a quoted attribute value (width="123px" -> 123)
func parseNumericAttr(tag, attr string) (int, bool) {
	pos := -1
	for from := 0; from < len(tag); {
		k := strings.Index(tag[from:], attr)
		if k < 0 {
			break
		}
		k += from
		// skip matches inside other attribute names such as stroke-width
		if k == 0 || tag[k-1] == ' ' || tag[k-1] == '\t' || tag[k-1] == '\n' {
			pos = k + len(attr)
			break
		}
		from = k + len(attr)
	}
	if pos < 0 {
		return 0, false
	}

	rest := strings.TrimLeft(tag[pos:], " \t\n")
	if !strings.HasPrefix(rest, "=") {
		return 0, false
	}
	rest = strings.TrimLeft(rest[1:], " \t\n")
	if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
		return 0, false
	}
	quote := rest[0]
	val := rest[1:]
	if end := strings.IndexByte(val, quote); end >= 0 {
		val = val[:end]
	}

	num, found := 0, false
	for i := 0; i < len(val); i++ {
		ch := val[i]
		if ch < '0' || ch > '9' {
			break
		}
		found = true
		num = num*10 + int(ch-'0')
	}
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

// isSVGData performs a lightweight detection of SVG content from the first 4KB
func isSVGData(data []byte) bool {
	n := min(len(data), 4096)
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte(`xmlns="http://www.w3.org/2000/svg"`))
}

// renderSVG rasterizes SVG data onto a white canvas of the given size
func renderSVG(svgData []byte, targetW, targetH int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}
