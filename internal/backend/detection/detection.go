package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"image"

	"github.com/samber/lo"
)

// Box is an axis-aligned bounding box in pixel coordinates (top-left, bottom-right).
// It is encoded in JSON as [x1, y1, x2, y2].
type Box struct {
	X1, Y1, X2, Y2 int
}

func (b Box) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *Box) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) != 4 {
		return fmt.Errorf("bounding box needs 4 coordinates, got %d", len(coords))
	}
	b.X1, b.Y1, b.X2, b.Y2 = int(coords[0]), int(coords[1]), int(coords[2]), int(coords[3])
	return nil
}

// Rect converts the box to an image.Rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is one object found in a frame
type Detection struct {
	Box        Box     `json:"box"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// Detector runs the object detection model on an encoded frame
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]Detection, error)
}

// DetectorFunc adapts a plain function to the Detector interface
type DetectorFunc func(ctx context.Context, frame []byte) ([]Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, frame []byte) ([]Detection, error) {
	return f(ctx, frame)
}

// CountClass returns how many detections belong to classID
func CountClass(detections []Detection, classID int) int {
	return lo.CountBy(detections, func(d Detection) bool {
		return d.ClassID == classID
	})
}
