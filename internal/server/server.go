/**
 * HTTP API for the parcel scan worker
 *
 * Endpoints:
 *   POST /api/process    - multipart upload of a parcel photo, runs the
 *                          scan pipeline synchronously
 *   GET  /api/scans/{id} - status of a persisted scan (queued jobs are
 *                          asynchronous, callers poll here)
 *   GET  /health         - capability readiness report
 *
 * Error messages on the process endpoint are user-facing and in Thai,
 * matching the audience of the upload UI that fronts this API.
 */

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parcelscan/parcel-ocr-worker/internal/cache"
	"github.com/parcelscan/parcel-ocr-worker/internal/config"
	"github.com/parcelscan/parcel-ocr-worker/internal/logging"
	"github.com/parcelscan/parcel-ocr-worker/internal/pipeline"
	"github.com/parcelscan/parcel-ocr-worker/internal/storage"
)

// Server serves the scan HTTP API.
type Server struct {
	cfg       *config.Config
	processor *pipeline.Processor
	store     *storage.ScanStore // optional
	cache     *cache.ResultCache // optional
	logger    *logging.Logger
	httpSrv   *http.Server
}

// processResponse is the JSON reply of POST /api/process.
type processResponse struct {
	Success        bool                  `json:"success"`
	Data           json.RawMessage       `json:"data,omitempty"`
	Timings        pipeline.StageTimings `json:"timings"`
	RawTextPreview string                `json:"raw_text_preview,omitempty"`
	Error          string                `json:"error,omitempty"`
	Cached         bool                  `json:"cached,omitempty"`
}

// scanStatusResponse is the JSON reply of GET /api/scans/{id}.
type scanStatusResponse struct {
	JobID           string                `json:"job_id"`
	Status          string                `json:"status"`
	RecipientName   string                `json:"recipient_name,omitempty"`
	RoomNumber      string                `json:"room_number,omitempty"`
	ShippingCompany string                `json:"shipping_company,omitempty"`
	TrackingNumber  string                `json:"tracking_number,omitempty"`
	RawTextPreview  string                `json:"raw_text_preview,omitempty"`
	Timings         pipeline.StageTimings `json:"timings,omitempty"`
	ErrorCode       string                `json:"error_code,omitempty"`
	ErrorMessage    string                `json:"error_message,omitempty"`
}

// healthResponse is the JSON reply of GET /health.
type healthResponse struct {
	Status               string `json:"status"`
	OCRReady             bool   `json:"ocr_ready"`
	TyphoonAPIConfigured bool   `json:"typhoon_api_configured"`
	Database             string `json:"database,omitempty"`
}

// New creates the HTTP server. store and resultCache may be nil.
func New(cfg *config.Config, processor *pipeline.Processor, store *storage.ScanStore, resultCache *cache.ResultCache) *Server {
	s := &Server{
		cfg:       cfg,
		processor: processor,
		store:     store,
		cache:     resultCache,
		logger:    logging.NewLogger("HTTPServer"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/process", s.handleProcess)
	mux.HandleFunc("/api/scans/", s.handleScanStatus)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving. Blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.cfg.HTTPAddr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// handleHealth reports capability readiness with no side effects.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.processor.Health()
	resp := healthResponse{
		Status:               "healthy",
		OCRReady:             health.OCRReady,
		TyphoonAPIConfigured: health.LLMConfigured,
	}
	if s.store != nil {
		resp.Database = "connected"
		if err := s.store.Ping(r.Context()); err != nil {
			resp.Database = "unreachable"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleScanStatus looks up one persisted scan by job ID.
func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, processResponse{Error: "scan history is not configured"})
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/scans/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeJSON(w, http.StatusBadRequest, processResponse{Error: "ต้องระบุรหัสงาน"})
		return
	}
	if _, err := uuid.Parse(jobID); err != nil {
		writeJSON(w, http.StatusBadRequest, processResponse{Error: "รหัสงานไม่ถูกต้อง"})
		return
	}

	scan, err := s.store.GetScan(r.Context(), jobID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, processResponse{Error: "ไม่พบงานสแกนนี้"})
		return
	}

	writeJSON(w, http.StatusOK, scanStatusResponse{
		JobID:           scan.JobID,
		Status:          scan.Status,
		RecipientName:   scan.RecipientName,
		RoomNumber:      scan.RoomNumber,
		ShippingCompany: scan.ShippingCompany,
		TrackingNumber:  scan.TrackingNumber,
		RawTextPreview:  scan.TextPreview,
		Timings:         scan.Timings,
		ErrorCode:       scan.ErrorCode,
		ErrorMessage:    scan.ErrorMessage,
	})
}

// handleProcess accepts a multipart parcel photo and runs the pipeline.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, processResponse{Error: "ไม่มีไฟล์รูปภาพ"})
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, processResponse{Error: "ไม่ได้เลือกไฟล์"})
		return
	}

	if !allowedFile(header.Filename) {
		writeJSON(w, http.StatusBadRequest, processResponse{Error: "ประเภทไฟล์ไม่ถูกต้อง (รองรับ: jpg, jpeg, png, gif, bmp, webp)"})
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, processResponse{Error: "ไม่สามารถอ่านไฟล์ได้"})
		return
	}
	if len(imageData) == 0 {
		writeJSON(w, http.StatusBadRequest, processResponse{Error: "ไฟล์ว่างเปล่า"})
		return
	}

	// Identical photo scanned before: skip the OCR and LLM spend.
	imageKey := cache.ImageKey(imageData)
	if s.cache != nil {
		if hit := s.cache.Get(r.Context(), imageKey); hit != nil {
			s.logger.Info("Serving cached result", "key", imageKey)
			writeJSON(w, http.StatusOK, processResponse{
				Success:        true,
				Data:           hit.Data,
				Timings:        hit.Timings,
				RawTextPreview: hit.TextPreview,
				Cached:         true,
			})
			return
		}
	}

	jobID := uuid.NewString()
	uploadPath := filepath.Join(s.cfg.UploadDir, fmt.Sprintf("%s_%s", jobID, sanitizeFilename(header.Filename)))
	if err := os.WriteFile(uploadPath, imageData, 0o644); err != nil {
		s.logger.Error("Failed to save upload", "path", uploadPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, processResponse{Error: "เกิดข้อผิดพลาดในการบันทึกไฟล์"})
		return
	}
	// The upload dies with the request; the pipeline removes its own
	// derived temp file, this removes the source.
	defer os.Remove(uploadPath)
	defer sweepOldUploads(s.cfg.UploadDir, time.Duration(s.cfg.UploadMaxAgeMinutes)*time.Minute)

	minConfidence := 0.0
	if v := r.FormValue("min_confidence"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			minConfidence = parsed
		}
	}

	result := s.processor.Process(r.Context(), pipeline.Request{
		JobID:         jobID,
		ImagePath:     uploadPath,
		MinConfidence: minConfidence,
	})

	s.recordResult(r.Context(), &result)

	if !result.Success {
		status := http.StatusInternalServerError
		if result.Err.ClientFacing() {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, processResponse{
			Timings:        result.Timings,
			RawTextPreview: result.TextPreview,
			Error:          result.Err.Message,
		})
		return
	}

	data, err := json.Marshal(result.Data)
	if err != nil {
		s.logger.WithJob(result.JobID).Error("Failed to serialize record", "error", err)
		writeJSON(w, http.StatusInternalServerError, processResponse{Error: "เกิดข้อผิดพลาดภายใน"})
		return
	}

	if s.cache != nil && !result.Data.Failed() {
		s.cache.Set(r.Context(), imageKey, &cache.CachedResult{
			Data:        data,
			Timings:     result.Timings,
			TextPreview: result.TextPreview,
		})
	}

	writeJSON(w, http.StatusOK, processResponse{
		Success:        true,
		Data:           data,
		Timings:        result.Timings,
		RawTextPreview: result.TextPreview,
	})
}

// recordResult persists the scan outcome when storage is configured.
func (s *Server) recordResult(ctx context.Context, result *pipeline.Result) {
	if s.store == nil {
		return
	}

	update := &storage.ScanUpdate{
		JobID:       result.JobID,
		TextPreview: result.TextPreview,
		Timings:     result.Timings,
	}

	if result.Success {
		update.Status = storage.StatusCompleted
		update.RecipientName = result.Data.RecipientName
		update.RoomNumber = result.Data.RoomNumber
		update.ShippingCompany = result.Data.ShippingCompany
		update.TrackingNumber = result.Data.TrackingNumber
	} else {
		update.Status = storage.StatusFailed
		update.ErrorCode = string(result.Err.Code)
		update.ErrorMessage = result.Err.Message
	}

	if err := s.store.UpsertScan(ctx, update); err != nil {
		s.logger.WithJob(result.JobID).Warn("Failed to persist scan result", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
