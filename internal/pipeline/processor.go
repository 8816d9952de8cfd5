/**
 * Scan pipeline orchestrator
 *
 * Sequences preprocessing, OCR, prompt construction, the LLM call and
 * response normalization for one parcel photo. Per-stage wall-clock
 * timings are recorded and returned to the caller even on partial
 * failure, so operators can see which stage is slow or failing.
 *
 * Stage contract:
 *   - decode/validation failures are client-facing and abort before
 *     any LLM spend
 *   - OCR engine failures are fatal to the request
 *   - LLM call failures are fatal to the request
 *   - model replies that fail to parse are absorbed into a degraded
 *     but well-formed record
 */

package pipeline

import (
	"context"
	"errors"
	"log"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	perrors "github.com/parcelscan/parcel-ocr-worker/internal/errors"
	"github.com/parcelscan/parcel-ocr-worker/internal/extract"
	"github.com/parcelscan/parcel-ocr-worker/internal/ocr"
	"github.com/parcelscan/parcel-ocr-worker/internal/preprocess"
)

// Stage timing keys.
const (
	StageOCR   = "ocr"
	StageLLM   = "llm"
	StageTotal = "total"
)

// StageTimings maps stage name to elapsed seconds.
type StageTimings map[string]float64

// Completer is the LLM capability consumed by the pipeline.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Configured() bool
}

// Options tunes pipeline behavior per process.
type Options struct {
	MinConfidence float64 // OCR confidence drop threshold
	MinTextLength int     // below this the image counts as unreadable
}

// Request is one scan job.
type Request struct {
	JobID     string
	ImagePath string

	// MinConfidence overrides the process-wide threshold when in (0, 1].
	MinConfidence float64
}

// Result is the end-to-end outcome of one scan.
type Result struct {
	JobID       string
	Success     bool
	Data        *extract.ParcelRecord
	Timings     StageTimings
	TextPreview string
	Err         *perrors.PipelineError
}

// Health reports capability readiness with no side effects.
type Health struct {
	OCRReady      bool
	LLMConfigured bool
}

// Processor orchestrates the scan pipeline. The OCR engine is a shared
// process-scoped resource injected at construction; the processor
// itself holds no mutable per-request state.
type Processor struct {
	engine     ocr.Engine
	llm        Completer
	normalizer *preprocess.Normalizer
	opts       Options
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(engine ocr.Engine, llm Completer, normalizer *preprocess.Normalizer, opts Options) *Processor {
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.4
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = 5
	}
	return &Processor{
		engine:     engine,
		llm:        llm,
		normalizer: normalizer,
		opts:       opts,
	}
}

// Health reports whether the OCR engine initialized and the LLM client
// has credentials.
func (p *Processor) Health() Health {
	return Health{
		OCRReady:      p.engine != nil && p.engine.Ready(),
		LLMConfigured: p.llm != nil && p.llm.Configured(),
	}
}

// Process runs the full pipeline for one request synchronously.
func (p *Processor) Process(ctx context.Context, req Request) Result {
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	minConfidence := p.opts.MinConfidence
	if req.MinConfidence > 0 && req.MinConfidence <= 1 {
		minConfidence = req.MinConfidence
	}

	timings := StageTimings{}
	totalStart := time.Now()

	fail := func(err *perrors.PipelineError) Result {
		timings[StageTotal] = roundSeconds(time.Since(totalStart))
		return Result{JobID: jobID, Timings: timings, Err: err}
	}

	// Stage 1: preprocess + OCR
	log.Printf("[Job %s] Step 1/2: Running OCR on %s (minConfidence=%.2f)", jobID, req.ImagePath, minConfidence)
	ocrStart := time.Now()

	processedPath, err := p.normalizer.Normalize(req.ImagePath)
	if err != nil {
		var decodeErr *preprocess.DecodeError
		if errors.As(err, &decodeErr) {
			timings[StageOCR] = roundSeconds(time.Since(ocrStart))
			return fail(perrors.NewInputValidationError(jobID, "ไม่สามารถอ่านไฟล์รูปภาพได้"))
		}
		timings[StageOCR] = roundSeconds(time.Since(ocrStart))
		return fail(perrors.NewOCRFailedError(jobID, err))
	}
	if processedPath != req.ImagePath {
		// The derived temp file must die with the request no matter
		// which branch returns.
		defer os.Remove(processedPath)
	}

	detections, err := p.engine.Detect(ctx, processedPath)
	if err != nil {
		timings[StageOCR] = roundSeconds(time.Since(ocrStart))
		return fail(perrors.NewOCRFailedError(jobID, err))
	}

	text := ocr.FilterText(detections, minConfidence)
	timings[StageOCR] = roundSeconds(time.Since(ocrStart))
	log.Printf("[Job %s] OCR complete: detections=%d, accepted chars=%d, took=%.3fs",
		jobID, len(detections), len(text), timings[StageOCR])

	if len([]rune(text)) < p.opts.MinTextLength {
		// Unusable input is a client problem, not a server fault, and
		// must never spend the LLM call budget.
		return fail(perrors.NewInputValidationError(jobID, "ไม่สามารถอ่านข้อความจากภาพได้"))
	}

	preview := textPreview(text, 200)

	// Stage 2: LLM extraction
	log.Printf("[Job %s] Step 2/2: Extracting fields with Typhoon", jobID)
	llmStart := time.Now()

	reply, err := p.llm.Complete(ctx, extract.SystemPrompt, extract.BuildPrompt(text))
	if err != nil {
		result := fail(perrors.NewLLMFailedError(jobID, err.Error(), err))
		result.TextPreview = preview
		return result
	}
	timings[StageLLM] = roundSeconds(time.Since(llmStart))

	record := extract.NormalizeReply(reply)
	if record.Failed() {
		// Absorbed: the caller gets a well-formed fallback record. The
		// raw reply is logged here for debugging, never surfaced as a
		// fault to the end user.
		parseErr := perrors.NewResponseParseError(jobID, reply, nil)
		log.Printf("[Job %s] Model reply was not valid JSON, returning fallback record: %v", jobID, parseErr)
	}

	timings[StageTotal] = roundSeconds(time.Since(totalStart))
	log.Printf("[Job %s] Pipeline complete: llm=%.3fs, total=%.3fs, parseFailed=%v",
		jobID, timings[StageLLM], timings[StageTotal], record.Failed())

	return Result{
		JobID:       jobID,
		Success:     true,
		Data:        &record,
		Timings:     timings,
		TextPreview: preview,
	}
}

// roundSeconds rounds a duration to millisecond-precision seconds for
// the timing report.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

// textPreview truncates text to at most max runes.
func textPreview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
