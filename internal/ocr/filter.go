package ocr

import "strings"

// FilterText joins detection texts into a single newline-separated blob,
// dropping every detection whose confidence is not strictly above
// minConfidence. Engine scan order is preserved and the text itself is
// passed through untouched; only the joined result is trimmed. Cleanup
// of OCR noise is deliberately left to the LLM stage.
func FilterText(detections []Detection, minConfidence float64) string {
	lines := make([]string, 0, len(detections))
	for _, d := range detections {
		if d.Confidence > minConfidence {
			lines = append(lines, d.Text)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
