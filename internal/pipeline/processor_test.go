package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	perrors "github.com/parcelscan/parcel-ocr-worker/internal/errors"
	"github.com/parcelscan/parcel-ocr-worker/internal/extract"
	"github.com/parcelscan/parcel-ocr-worker/internal/ocr"
	"github.com/parcelscan/parcel-ocr-worker/internal/preprocess"
)

// stubEngine returns canned detections.
type stubEngine struct {
	detections []ocr.Detection
	err        error
}

func (s *stubEngine) Detect(ctx context.Context, imagePath string) ([]ocr.Detection, error) {
	return s.detections, s.err
}

func (s *stubEngine) Ready() bool  { return true }
func (s *stubEngine) Close() error { return nil }

// stubLLM returns a canned reply, recording whether it was called.
type stubLLM struct {
	reply  string
	err    error
	called bool
}

func (s *stubLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.called = true
	return s.reply, s.err
}

func (s *stubLLM) Configured() bool { return true }

// writeTestImage writes a small valid PNG for the preprocess stage.
func writeTestImage(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.White)
		}
	}

	path := filepath.Join(t.TempDir(), "label.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create test image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return path
}

func newTestProcessor(engine ocr.Engine, llm Completer) *Processor {
	normalizer := preprocess.NewNormalizer(preprocess.PolicyShrink, 2000)
	return NewProcessor(engine, llm, normalizer, Options{MinConfidence: 0.4, MinTextLength: 5})
}

func labelDetections() []ocr.Detection {
	return []ocr.Detection{
		{Text: "ผู้รับ: สมชาย ใจดี", Confidence: 0.95},
		{Text: "ห้อง 301", Confidence: 0.9},
		{Text: "Flash Express", Confidence: 0.85},
		{Text: "TH1234567890", Confidence: 0.8},
	}
}

func TestProcessHappyPath(t *testing.T) {
	llm := &stubLLM{reply: `{"recipient_name":"สมชาย ใจดี","room_number":"301","shipping_company":"Flash Express","tracking_number":"TH1234567890"}`}
	p := newTestProcessor(&stubEngine{detections: labelDetections()}, llm)

	result := p.Process(context.Background(), Request{ImagePath: writeTestImage(t)})

	if !result.Success {
		t.Fatalf("Process() failed: %v", result.Err)
	}
	if result.Data.RecipientName != "สมชาย ใจดี" ||
		result.Data.RoomNumber != "301" ||
		result.Data.ShippingCompany != "Flash Express" ||
		result.Data.TrackingNumber != "TH1234567890" {
		t.Errorf("unexpected record: %+v", result.Data)
	}
	if result.Data.Failed() {
		t.Error("error marker must be absent on a clean extraction")
	}
	for _, stage := range []string{StageOCR, StageLLM, StageTotal} {
		if _, ok := result.Timings[stage]; !ok {
			t.Errorf("timings missing stage %q: %v", stage, result.Timings)
		}
	}
	if result.TextPreview == "" {
		t.Error("text preview should carry the accepted OCR text")
	}
}

func TestProcessEmptyOCRAbortsBeforeLLM(t *testing.T) {
	llm := &stubLLM{reply: `{}`}
	p := newTestProcessor(&stubEngine{detections: nil}, llm)

	result := p.Process(context.Background(), Request{ImagePath: writeTestImage(t)})

	if result.Success {
		t.Fatal("empty OCR text must fail validation")
	}
	if result.Err.Code != perrors.ErrorInputValidation {
		t.Errorf("error code = %s, want %s", result.Err.Code, perrors.ErrorInputValidation)
	}
	if llm.called {
		t.Error("LLM must not be called on unusable input")
	}
	if _, ok := result.Timings[StageOCR]; !ok {
		t.Errorf("ocr timing should be present: %v", result.Timings)
	}
	if _, ok := result.Timings[StageLLM]; ok {
		t.Errorf("llm timing must be absent: %v", result.Timings)
	}
}

func TestProcessShortTextFailsValidation(t *testing.T) {
	detections := []ocr.Detection{{Text: "ab", Confidence: 0.9}}
	llm := &stubLLM{}
	p := newTestProcessor(&stubEngine{detections: detections}, llm)

	result := p.Process(context.Background(), Request{ImagePath: writeTestImage(t)})

	if result.Success || result.Err.Code != perrors.ErrorInputValidation {
		t.Fatalf("text below the minimum length must fail validation, got %+v", result)
	}
	if llm.called {
		t.Error("LLM must not be called for too-short text")
	}
}

func TestProcessOCREngineFailureIsFatal(t *testing.T) {
	llm := &stubLLM{}
	p := newTestProcessor(&stubEngine{err: fmt.Errorf("tesseract crashed")}, llm)

	result := p.Process(context.Background(), Request{ImagePath: writeTestImage(t)})

	if result.Success || result.Err.Code != perrors.ErrorOCRFailed {
		t.Fatalf("engine failure must be fatal, got %+v", result)
	}
	if llm.called {
		t.Error("LLM must not be called after OCR failure")
	}
}

func TestProcessUndecodableImageFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-image.png")
	if err := os.WriteFile(path, []byte("this is not a raster image"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := newTestProcessor(&stubEngine{}, &stubLLM{})
	result := p.Process(context.Background(), Request{ImagePath: path})

	if result.Success || result.Err.Code != perrors.ErrorInputValidation {
		t.Fatalf("undecodable input must fail validation, got %+v", result)
	}
}

func TestProcessLLMFailureSurfacesDetail(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("Typhoon error (status 429): rate limited")}
	p := newTestProcessor(&stubEngine{detections: labelDetections()}, llm)

	result := p.Process(context.Background(), Request{ImagePath: writeTestImage(t)})

	if result.Success {
		t.Fatal("LLM failure must fail the request")
	}
	if result.Err.Code != perrors.ErrorLLMFailed {
		t.Errorf("error code = %s, want %s", result.Err.Code, perrors.ErrorLLMFailed)
	}
	if result.Err.Details["provider_detail"] != "Typhoon error (status 429): rate limited" {
		t.Errorf("provider detail not surfaced: %v", result.Err.Details)
	}
	if _, ok := result.Timings[StageOCR]; !ok {
		t.Errorf("ocr timing should survive an LLM failure: %v", result.Timings)
	}
	if _, ok := result.Timings[StageLLM]; ok {
		t.Errorf("llm timing must be absent after a failed call: %v", result.Timings)
	}
}

func TestProcessLLMTimeout(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("request to Typhoon failed: %w", context.DeadlineExceeded)}
	p := newTestProcessor(&stubEngine{detections: labelDetections()}, llm)

	result := p.Process(context.Background(), Request{ImagePath: writeTestImage(t)})

	if result.Success || result.Err.Code != perrors.ErrorLLMFailed {
		t.Fatalf("timeout must be an LLM capability failure, got %+v", result)
	}
	if _, ok := result.Timings[StageLLM]; ok {
		t.Errorf("llm timing must be absent on timeout: %v", result.Timings)
	}
}

func TestProcessParseFailureIsAbsorbed(t *testing.T) {
	llm := &stubLLM{reply: "Sorry, I cannot help."}
	p := newTestProcessor(&stubEngine{detections: labelDetections()}, llm)

	result := p.Process(context.Background(), Request{ImagePath: writeTestImage(t)})

	if !result.Success {
		t.Fatalf("parse failure must degrade, not fail: %v", result.Err)
	}
	if !result.Data.Failed() {
		t.Fatal("degraded record must carry the error marker")
	}
	if result.Data.RecipientName != extract.SentinelExtractionFailed {
		t.Errorf("RecipientName = %q, want extraction-failed sentinel", result.Data.RecipientName)
	}
}

func TestProcessCleansUpDerivedTempFile(t *testing.T) {
	imagePath := writeTestImage(t)
	dir := filepath.Dir(imagePath)

	llm := &stubLLM{reply: `{"recipient_name":"A","room_number":"1","shipping_company":"B","tracking_number":"C"}`}
	p := newTestProcessor(&stubEngine{detections: labelDetections()}, llm)

	p.Process(context.Background(), Request{ImagePath: imagePath})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if entry.Name() != filepath.Base(imagePath) {
			t.Errorf("derived temp file leaked: %s", entry.Name())
		}
	}
}

func TestProcessMinConfidenceOverride(t *testing.T) {
	detections := []ocr.Detection{
		{Text: "ผู้รับ: สมชาย ใจดี", Confidence: 0.35},
		{Text: "TH1234567890", Confidence: 0.35},
	}
	llm := &stubLLM{reply: `{"recipient_name":"สมชาย ใจดี","room_number":"1","shipping_company":"B","tracking_number":"TH1234567890"}`}
	p := newTestProcessor(&stubEngine{detections: detections}, llm)

	// Default threshold 0.4 drops everything.
	result := p.Process(context.Background(), Request{ImagePath: writeTestImage(t)})
	if result.Success {
		t.Fatal("default threshold should reject 0.35-confidence detections")
	}

	// Lowered per-request threshold accepts them.
	result = p.Process(context.Background(), Request{ImagePath: writeTestImage(t), MinConfidence: 0.3})
	if !result.Success {
		t.Fatalf("lowered threshold should accept detections: %v", result.Err)
	}
}
