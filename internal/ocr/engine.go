/**
 * OCR capability contract
 *
 * The pipeline treats OCR as a black box: an image path goes in, an
 * ordered list of text detections with confidences comes out. The
 * engine is constructed once per process (model loading is expensive)
 * and injected into the orchestrator, so tests can substitute a stub.
 */

package ocr

import (
	"context"
	"image"
)

// Detection is a single OCR-recognized text line.
type Detection struct {
	Text       string
	Confidence float64 // normalized to [0,1]
	Box        image.Rectangle
}

// Engine recognizes text lines in an image file.
type Engine interface {
	// Detect runs recognition on the image at path. The returned
	// detections preserve the engine's scan order. An empty slice means
	// nothing was recognized; an error means the engine itself failed.
	Detect(ctx context.Context, imagePath string) ([]Detection, error)

	// Ready reports whether the engine initialized successfully.
	Ready() bool

	// Close releases engine resources.
	Close() error
}
