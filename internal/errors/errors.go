package errors

import (
	"errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the parcel scan pipeline
 *
 * Each stage of the pipeline reports failure through a structured
 * PipelineError so the caller can map it to an HTTP status and persist
 * the detail alongside the job record.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Request errors (client-facing, 4xx-equivalent)
	ErrorInputValidation ErrorCode = "INPUT_VALIDATION"

	// Capability errors (fatal to the request)
	ErrorOCRFailed ErrorCode = "OCR_FAILED"
	ErrorLLMFailed ErrorCode = "LLM_FAILED"

	// Absorbed errors (request still produces a degraded record)
	ErrorResponseParse ErrorCode = "RESPONSE_PARSE"
)

// PipelineError represents a structured pipeline error
type PipelineError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ClientFacing reports whether the error should map to a 4xx response.
func (e *PipelineError) ClientFacing() bool {
	return e.Code == ErrorInputValidation
}

// AsPipelineError unwraps err into a *PipelineError if possible.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Factory functions for common errors

func NewInputValidationError(jobID string, reason string) *PipelineError {
	return &PipelineError{
		Code:      ErrorInputValidation,
		Message:   reason,
		JobID:     jobID,
		Timestamp: time.Now(),
	}
}

func NewOCRFailedError(jobID string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorOCRFailed,
		Message:   "OCR engine failed to process image",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewLLMFailedError(jobID string, detail string, cause error) *PipelineError {
	return &PipelineError{
		Code:      ErrorLLMFailed,
		Message:   fmt.Sprintf("LLM extraction failed: %s", detail),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"provider_detail": detail,
		},
		Cause: cause,
	}
}

func NewResponseParseError(jobID string, rawReply string, cause error) *PipelineError {
	preview := rawReply
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return &PipelineError{
		Code:      ErrorResponseParse,
		Message:   "model reply was not valid JSON",
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"reply_preview": preview,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *PipelineError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
