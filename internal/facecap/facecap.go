// Package facecap is the boundary to the face-capture collaborator:
// image in, fixed-length embedding and crop out, or one of four stable
// failure kinds. The implementation lives outside this service.
package facecap

import (
	"context"
	"errors"
)

// Stable failure identifiers. Unlike ordinary diagnostic messages,
// these are part of the collaborator contract and safe to match on.
var (
	ErrNoFile         = errors.New("no-file")
	ErrDecodeFailure  = errors.New("decode-failure")
	ErrNoFaceDetected = errors.New("no-face-detected")
	ErrDetectionError = errors.New("detection-error")
)

// Result is a successful capture: an opaque fixed-length embedding and
// the face bounding box (x1, y1, x2, y2) in the source image.
type Result struct {
	Embedding   []float32  `json:"embedding"`
	BoundingBox [4]float32 `json:"bounding_box"`
}

// Capturer extracts a face embedding from an image on disk.
type Capturer interface {
	Extract(ctx context.Context, imagePath string) (*Result, error)
}
