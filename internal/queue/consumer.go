/**
 * Queue consumer for the parcel scan worker
 *
 * Consumes scan jobs from a Redis-backed queue so other services can
 * submit parcel photos asynchronously (e.g. a locker kiosk batching
 * overnight arrivals). Uses Asynq for queue management. Each job runs
 * the same synchronous pipeline the HTTP API uses; retry/backoff for
 * failed jobs lives here, in the caller, never inside the pipeline.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/parcelscan/parcel-ocr-worker/internal/pipeline"
	"github.com/parcelscan/parcel-ocr-worker/internal/storage"
)

// TaskTypeScan is the Asynq task type for one parcel scan.
const TaskTypeScan = "parcel:scan"

// ScanJob is the payload of a queued scan task.
type ScanJob struct {
	JobID         string  `json:"jobId"`
	ImagePath     string  `json:"imagePath"`
	MinConfidence float64 `json:"minConfidence,omitempty"`
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	RedisURL       string
	QueueName      string
	Concurrency    int
	Processor      *pipeline.Processor
	Store          *storage.ScanStore // optional
	ProcessTimeout time.Duration      // per-job bound, default 2 minutes
}

// Consumer handles scan job consumption from the Redis queue.
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor *pipeline.Processor
	store     *storage.ScanStore
	config    *ConsumerConfig
}

// NewConsumer creates a new queue consumer.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 2 * time.Minute
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff capped at a minute.
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task processing error: type=%s, payload=%s, error=%v",
					task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		store:     cfg.Store,
		config:    cfg,
	}

	mux.HandleFunc(TaskTypeScan, consumer.handleScan)

	return consumer, nil
}

// Start starts the queue consumer.
func (c *Consumer) Start() error {
	log.Printf("Starting queue consumer (concurrency=%d, queue=%s)...",
		c.config.Concurrency, c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			log.Printf("Queue consumer error: %v", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully.
func (c *Consumer) Stop() {
	log.Printf("Stopping queue consumer...")
	c.server.Shutdown()
	log.Printf("Queue consumer stopped")
}

// handleScan processes one queued scan job.
func (c *Consumer) handleScan(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job ScanJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal scan job: %w", err)
	}

	log.Printf("[Job %s] Queued scan started: image=%s", job.JobID, job.ImagePath)

	c.recordStatus(ctx, &storage.ScanUpdate{
		JobID:  job.JobID,
		Status: storage.StatusProcessing,
	})

	processCtx, cancel := context.WithTimeout(ctx, c.config.ProcessTimeout)
	defer cancel()

	result := c.processor.Process(processCtx, pipeline.Request{
		JobID:         job.JobID,
		ImagePath:     job.ImagePath,
		MinConfidence: job.MinConfidence,
	})

	duration := time.Since(startTime)

	if !result.Success {
		log.Printf("[Job %s] Queued scan failed after %v: %v", job.JobID, duration, result.Err)

		c.recordStatus(ctx, &storage.ScanUpdate{
			JobID:        job.JobID,
			Status:       storage.StatusFailed,
			TextPreview:  result.TextPreview,
			Timings:      result.Timings,
			ErrorCode:    string(result.Err.Code),
			ErrorMessage: result.Err.Message,
		})

		if result.Err.ClientFacing() {
			// Unreadable input will not improve on retry.
			return fmt.Errorf("scan rejected: %v: %w", result.Err, asynq.SkipRetry)
		}
		return fmt.Errorf("scan failed: %w", result.Err)
	}

	log.Printf("[Job %s] Queued scan completed in %v: tracking=%s",
		job.JobID, duration, result.Data.TrackingNumber)

	c.recordStatus(ctx, &storage.ScanUpdate{
		JobID:           job.JobID,
		Status:          storage.StatusCompleted,
		RecipientName:   result.Data.RecipientName,
		RoomNumber:      result.Data.RoomNumber,
		ShippingCompany: result.Data.ShippingCompany,
		TrackingNumber:  result.Data.TrackingNumber,
		TextPreview:     result.TextPreview,
		Timings:         result.Timings,
	})

	return nil
}

// recordStatus persists a status transition when storage is configured.
// Persistence failures never fail the job itself.
func (c *Consumer) recordStatus(ctx context.Context, update *storage.ScanUpdate) {
	if c.store == nil {
		return
	}
	if err := c.store.UpsertScan(ctx, update); err != nil {
		log.Printf("[Job %s] Warning: failed to persist status %s: %v", update.JobID, update.Status, err)
	}
}
