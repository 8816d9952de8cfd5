package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClientFacing(t *testing.T) {
	if !NewInputValidationError("j1", "bad input").ClientFacing() {
		t.Error("validation errors are client-facing")
	}
	if NewOCRFailedError("j1", errors.New("boom")).ClientFacing() {
		t.Error("OCR failures are server faults")
	}
	if NewLLMFailedError("j1", "timeout", errors.New("boom")).ClientFacing() {
		t.Error("LLM failures are server faults")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewOCRFailedError("j1", cause)

	if !strings.Contains(err.Error(), "OCR_FAILED") {
		t.Errorf("error string missing code: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error string missing cause: %s", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Unwrap chain broken")
	}
}

func TestAsPipelineError(t *testing.T) {
	inner := NewLLMFailedError("j1", "rate limited", nil)
	wrapped := fmt.Errorf("handling request: %w", inner)

	pe, ok := AsPipelineError(wrapped)
	if !ok {
		t.Fatal("AsPipelineError should unwrap through fmt.Errorf")
	}
	if pe.Code != ErrorLLMFailed {
		t.Errorf("code = %s", pe.Code)
	}

	if _, ok := AsPipelineError(errors.New("plain")); ok {
		t.Error("plain errors must not convert")
	}
}

func TestToMap(t *testing.T) {
	err := NewLLMFailedError("j1", "rate limited", errors.New("429"))
	m := err.ToMap()

	if m["error_code"] != "LLM_FAILED" {
		t.Errorf("error_code = %v", m["error_code"])
	}
	if m["provider_detail"] != "rate limited" {
		t.Errorf("provider_detail = %v", m["provider_detail"])
	}
	if m["cause"] != "429" {
		t.Errorf("cause = %v", m["cause"])
	}
}

func TestResponseParseErrorTruncatesPreview(t *testing.T) {
	long := strings.Repeat("x", 500)
	err := NewResponseParseError("j1", long, nil)

	preview, _ := err.Details["reply_preview"].(string)
	if len(preview) != 200 {
		t.Errorf("preview length = %d, want 200", len(preview))
	}
}
