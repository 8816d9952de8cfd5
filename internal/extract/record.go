/**
 * ParcelRecord - structured output of the extraction pipeline
 *
 * The record always carries all four parcel fields. Fields the model
 * could not find hold the "not found" sentinel; when the model reply
 * could not be parsed at all, every field holds the "extraction failed"
 * sentinel and ErrorDetail is set. Keys the model volunteered beyond
 * the schema are preserved as extras.
 */

package extract

import "encoding/json"

// Required output keys, matching the prompt schema exactly.
const (
	KeyRecipientName   = "recipient_name"
	KeyRoomNumber      = "room_number"
	KeyShippingCompany = "shipping_company"
	KeyTrackingNumber  = "tracking_number"
)

// Sentinel values standing in for absent data, so the output schema
// never has missing keys.
const (
	SentinelNotFound         = "ไม่พบข้อมูล"
	SentinelExtractionFailed = "ไม่สามารถสกัดข้อมูลได้"
)

// ParseFailureDetail is the fixed diagnostic carried in the error field
// when the model reply was not valid JSON.
const ParseFailureDetail = "invalid JSON from model"

// ParcelRecord is the structured result of one label extraction.
type ParcelRecord struct {
	RecipientName   string
	RoomNumber      string
	ShippingCompany string
	TrackingNumber  string

	// ErrorDetail is non-empty only for total parse failure.
	ErrorDetail string

	// Extra holds model-provided keys outside the four-field schema.
	Extra map[string]interface{}
}

// FailedRecord returns the fixed-shape record produced when the model
// reply could not be parsed.
func FailedRecord() ParcelRecord {
	return ParcelRecord{
		RecipientName:   SentinelExtractionFailed,
		RoomNumber:      SentinelExtractionFailed,
		ShippingCompany: SentinelExtractionFailed,
		TrackingNumber:  SentinelExtractionFailed,
		ErrorDetail:     ParseFailureDetail,
	}
}

// Failed reports whether the record is a parse-failure fallback.
func (r ParcelRecord) Failed() bool {
	return r.ErrorDetail != ""
}

// MarshalJSON emits the four schema keys unconditionally, the error key
// only on parse failure, and any preserved extra keys.
func (r ParcelRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Extra)+5)
	for k, v := range r.Extra {
		out[k] = v
	}
	out[KeyRecipientName] = r.RecipientName
	out[KeyRoomNumber] = r.RoomNumber
	out[KeyShippingCompany] = r.ShippingCompany
	out[KeyTrackingNumber] = r.TrackingNumber
	if r.ErrorDetail != "" {
		out["error"] = r.ErrorDetail
	}
	return json.Marshal(out)
}
