package ocr

import (
	"context"
	"fmt"
)

// UnavailableEngine stands in when engine initialization failed at
// startup. The process still serves /health (reporting not-ready) and
// queued jobs fail cleanly instead of the whole worker refusing to
// boot on hosts without traineddata installed.
type UnavailableEngine struct {
	Reason error
}

func (e *UnavailableEngine) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	return nil, fmt.Errorf("OCR engine unavailable: %w", e.Reason)
}

func (e *UnavailableEngine) Ready() bool { return false }

func (e *UnavailableEngine) Close() error { return nil }
