/**
 * Parcel scan worker - main entry point
 *
 * Go worker that turns photos of Thai shipping labels into structured
 * parcel records (recipient, room, carrier, tracking number).
 *
 * Architecture:
 * - Tesseract OCR (tha+eng) for text recognition, preceded by an
 *   imaging-based preprocessing pass
 * - Typhoon LLM for semantic structuring of the noisy OCR text
 * - HTTP API for synchronous uploads, Asynq consumer for queued jobs
 * - Optional PostgreSQL persistence and Redis result caching
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parcelscan/parcel-ocr-worker/internal/cache"
	"github.com/parcelscan/parcel-ocr-worker/internal/config"
	"github.com/parcelscan/parcel-ocr-worker/internal/llm"
	"github.com/parcelscan/parcel-ocr-worker/internal/ocr"
	"github.com/parcelscan/parcel-ocr-worker/internal/pipeline"
	"github.com/parcelscan/parcel-ocr-worker/internal/preprocess"
	"github.com/parcelscan/parcel-ocr-worker/internal/queue"
	"github.com/parcelscan/parcel-ocr-worker/internal/server"
	"github.com/parcelscan/parcel-ocr-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Parcel scan worker starting...")
	log.Printf("Configuration loaded: model=%s, languages=%s, minConfidence=%.2f, policy=%s",
		cfg.TyphoonModel, cfg.OCRLanguages, cfg.MinConfidence, cfg.PreprocessPolicy)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatalf("Failed to create upload directory %s: %v", cfg.UploadDir, err)
	}

	// OCR engine is process-scoped: model loading is expensive, so it
	// is constructed once and shared read-only across requests.
	var engine ocr.Engine
	engine, err = ocr.NewTesseractEngine(cfg.OCRLanguages)
	if err != nil {
		log.Printf("WARNING: OCR engine initialization failed: %v. Scans will fail until resolved.", err)
		engine = &ocr.UnavailableEngine{Reason: err}
	}
	defer engine.Close()

	llmClient := llm.NewClient(
		cfg.ChatCompletionsURL(),
		cfg.TyphoonAPIKey,
		cfg.TyphoonModel,
		time.Duration(cfg.LLMTimeoutSeconds)*time.Second,
	)
	if !llmClient.Configured() {
		log.Printf("WARNING: TYPHOON_API_KEY not set. Extraction requests will fail.")
	}

	normalizer := preprocess.NewNormalizer(
		preprocess.Policy(cfg.PreprocessPolicy),
		cfg.MaxImageDimension,
	)

	processor := pipeline.NewProcessor(engine, llmClient, normalizer, pipeline.Options{
		MinConfidence: cfg.MinConfidence,
		MinTextLength: cfg.MinTextLength,
	})

	// Optional PostgreSQL persistence
	var store *storage.ScanStore
	if cfg.DatabaseURL != "" {
		log.Printf("Connecting to PostgreSQL...")
		store, err = storage.NewScanStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize scan store: %v", err)
		}
		defer store.Close()
		log.Printf("Scan store initialized")
	} else {
		log.Printf("DATABASE_URL not set, scan persistence disabled")
	}

	// Optional Redis result cache + queue consumer
	var resultCache *cache.ResultCache
	var consumer *queue.Consumer
	if cfg.RedisURL != "" {
		log.Printf("Connecting to Redis...")
		resultCache, err = cache.NewResultCache(cfg.RedisURL, time.Duration(cfg.UploadMaxAgeMinutes)*time.Minute)
		if err != nil {
			log.Printf("WARNING: result cache unavailable: %v", err)
			resultCache = nil
		} else {
			defer resultCache.Close()
			log.Printf("Result cache initialized")
		}

		consumer, err = queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.ScanQueue,
			Concurrency: cfg.QueueConcurrency,
			Processor:   processor,
			Store:       store,
		})
		if err != nil {
			log.Fatalf("Failed to initialize queue consumer: %v", err)
		}
		if err := consumer.Start(); err != nil {
			log.Fatalf("Failed to start queue consumer: %v", err)
		}
		log.Printf("Queue consumer started (queue=%s, concurrency=%d)", cfg.ScanQueue, cfg.QueueConcurrency)
	} else {
		log.Printf("REDIS_URL not set, result cache and queue intake disabled")
	}

	httpServer := server.New(cfg, processor, store, resultCache)

	health := processor.Health()
	log.Printf("===========================================")
	log.Printf("Parcel scan worker is READY")
	log.Printf("===========================================")
	log.Printf("HTTP API: %s", cfg.HTTPAddr)
	log.Printf("OCR engine: %s", readiness(health.OCRReady))
	log.Printf("Typhoon API: %s", configured(health.LLMConfigured))
	log.Printf("Upload dir: %s", cfg.UploadDir)
	log.Printf("===========================================")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}

	if consumer != nil {
		consumer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	log.Printf("Shutdown complete")
}

func readiness(ready bool) string {
	if ready {
		return "ready"
	}
	return "NOT READY"
}

func configured(ok bool) string {
	if ok {
		return "configured"
	}
	return "NOT CONFIGURED"
}
