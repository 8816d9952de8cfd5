/**
 * Tesseract OCR engine
 *
 * Local, offline recognition via gosseract. Thai shipping labels mix
 * Thai and Latin script, so the engine defaults to tha+eng traineddata.
 */

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/parcelscan/parcel-ocr-worker/internal/logging"
)

// TesseractEngine implements Engine using the local Tesseract install.
type TesseractEngine struct {
	languages []string
	ready     bool
	logger    *logging.Logger
}

// NewTesseractEngine creates a Tesseract-backed engine. languages is a
// "+"-separated traineddata list, e.g. "tha+eng". Initialization is
// verified once here; gosseract clients themselves are cheap and are
// created per call because they are not safe for concurrent use.
func NewTesseractEngine(languages string) (*TesseractEngine, error) {
	if languages == "" {
		languages = "tha+eng"
	}

	e := &TesseractEngine{
		languages: strings.Split(languages, "+"),
		logger:    logging.NewLogger("TesseractEngine"),
	}

	// Probe the install once so Ready() reflects reality before the
	// first request arrives.
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("tesseract language setup failed (%s): %w", languages, err)
	}

	e.ready = true
	e.logger.Info("Tesseract engine initialized", "languages", languages)
	return e, nil
}

// Detect recognizes text lines in the image at path.
func (e *TesseractEngine) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages: %w", err)
	}

	if err := client.SetImage(imagePath); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract recognition failed: %w", err)
	}

	detections := make([]Detection, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimRight(box.Word, "\n")
		if text == "" {
			continue
		}
		detections = append(detections, Detection{
			Text:       text,
			Confidence: box.Confidence / 100.0, // Tesseract reports 0-100
			Box:        box.Box,
		})
	}

	return detections, nil
}

// Ready reports whether the engine initialized successfully.
func (e *TesseractEngine) Ready() bool {
	return e.ready
}

// Close releases engine resources. Clients are per-call, so there is
// nothing process-wide to tear down.
func (e *TesseractEngine) Close() error {
	return nil
}
