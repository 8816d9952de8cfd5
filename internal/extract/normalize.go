/**
 * Response normalization for model replies
 *
 * Models sometimes wrap JSON in markdown fences or prose despite the
 * JSON-only instruction. NormalizeReply is total: any input string
 * produces a well-formed four-key ParcelRecord, degrading to the
 * extraction-failed fallback when strict parsing is impossible.
 */

package extract

import (
	"encoding/json"
	"fmt"
	"strings"
)

// fence scanner states
type fenceState int

const (
	outsideFence fenceState = iota
	fenceTag                // just crossed an opening fence, optional language tag pending
	insideFence
)

// stripFences extracts the innermost fenced block from content. A
// language tag immediately after the opening fence (e.g. "json") is
// dropped, whether it sits on the fence line or on its own line. A
// missing closing fence is tolerated: the block runs to end of input.
// Content without any fence is returned trimmed and unchanged.
func stripFences(content string) string {
	if !strings.Contains(content, "```") {
		return strings.TrimSpace(content)
	}

	state := outsideFence
	var block []string

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch state {
		case outsideFence:
			if idx := strings.Index(trimmed, "```"); idx >= 0 {
				state = fenceTag
				// Opening fence may carry the tag and even content on
				// the same line: ```json {...}
				rest := strings.TrimSpace(trimmed[idx+3:])
				rest = strings.TrimSpace(strings.TrimPrefix(rest, "json"))
				rest = strings.TrimSpace(strings.TrimSuffix(rest, "```"))
				if rest != "" {
					block = append(block, rest)
					state = insideFence
				}
			}
		case fenceTag:
			state = insideFence
			if trimmed == "json" {
				continue
			}
			fallthrough
		case insideFence:
			if strings.HasPrefix(trimmed, "```") {
				// Closing fence ends the block. If another fence opens
				// later the earlier block still wins: the first fenced
				// block is where instructed models put the payload.
				inner := strings.TrimSpace(strings.Join(block, "\n"))
				if strings.Contains(inner, "```") {
					return stripFences(inner)
				}
				return inner
			}
			block = append(block, line)
		}
	}

	// No closing fence seen.
	inner := strings.TrimSpace(strings.Join(block, "\n"))
	if strings.Contains(inner, "```") {
		return stripFences(inner)
	}
	return inner
}

// NormalizeReply parses the raw model reply into a ParcelRecord. It
// never fails: a reply that cannot be parsed as a JSON object yields
// FailedRecord. Missing schema keys are back-filled with the not-found
// sentinel; extra keys are preserved.
func NormalizeReply(raw string) ParcelRecord {
	cleaned := stripFences(strings.TrimSpace(raw))

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil || parsed == nil {
		return FailedRecord()
	}

	record := ParcelRecord{
		RecipientName:   fieldValue(parsed, KeyRecipientName),
		RoomNumber:      fieldValue(parsed, KeyRoomNumber),
		ShippingCompany: fieldValue(parsed, KeyShippingCompany),
		TrackingNumber:  fieldValue(parsed, KeyTrackingNumber),
	}

	for k, v := range parsed {
		switch k {
		case KeyRecipientName, KeyRoomNumber, KeyShippingCompany, KeyTrackingNumber, "error":
			continue
		}
		if record.Extra == nil {
			record.Extra = make(map[string]interface{})
		}
		record.Extra[k] = v
	}

	return record
}

// fieldValue pulls a schema key out of the parsed object, back-filling
// the not-found sentinel for absent, null or empty values. Non-string
// scalars the model may emit (a bare room number, say) are rendered as
// text rather than discarded.
func fieldValue(parsed map[string]interface{}, key string) string {
	v, ok := parsed[key]
	if !ok || v == nil {
		return SentinelNotFound
	}
	switch s := v.(type) {
	case string:
		if strings.TrimSpace(s) == "" {
			return SentinelNotFound
		}
		return s
	case float64:
		// JSON numbers decode as float64; render integers without the
		// trailing ".0".
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
