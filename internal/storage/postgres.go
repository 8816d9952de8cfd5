/**
 * PostgreSQL persistence for parcel scans
 *
 * Records every scan job with its status, extracted fields, stage
 * timings and error detail so operators can audit extraction quality
 * over time. Persistence is an observer of the pipeline: a storage
 * failure is logged by callers but never fails a scan.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Scan statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ScanStore handles database operations for parcel scans.
type ScanStore struct {
	db *sql.DB
}

// ScanUpdate is one status transition for a scan job.
type ScanUpdate struct {
	JobID           string
	Status          string
	RecipientName   string
	RoomNumber      string
	ShippingCompany string
	TrackingNumber  string
	TextPreview     string
	Timings         map[string]float64
	ErrorCode       string
	ErrorMessage    string
}

// NewScanStore opens a connection pool against databaseURL and verifies
// connectivity before returning.
func NewScanStore(databaseURL string) (*ScanStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &ScanStore{db: db}, nil
}

// UpsertScan records a status transition, creating the scan row on its
// first update.
func (s *ScanStore) UpsertScan(ctx context.Context, update *ScanUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	timingsJSON, err := json.Marshal(update.Timings)
	if err != nil {
		return fmt.Errorf("failed to marshal timings: %w", err)
	}

	query := `
		INSERT INTO parcel_scans (
			id, status, recipient_name, room_number, shipping_company,
			tracking_number, text_preview, timings, error_code, error_message,
			created_at, updated_at
		) VALUES (
			$1::uuid, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''),
			NULLIF($6, ''), NULLIF($7, ''), COALESCE($8::jsonb, '{}'::jsonb),
			NULLIF($9, ''), NULLIF($10, ''), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			recipient_name = COALESCE(EXCLUDED.recipient_name, parcel_scans.recipient_name),
			room_number = COALESCE(EXCLUDED.room_number, parcel_scans.room_number),
			shipping_company = COALESCE(EXCLUDED.shipping_company, parcel_scans.shipping_company),
			tracking_number = COALESCE(EXCLUDED.tracking_number, parcel_scans.tracking_number),
			text_preview = COALESCE(EXCLUDED.text_preview, parcel_scans.text_preview),
			timings = COALESCE(EXCLUDED.timings, parcel_scans.timings),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = s.db.QueryRowContext(
		ctx,
		query,
		update.JobID,
		update.Status,
		update.RecipientName,
		update.RoomNumber,
		update.ShippingCompany,
		update.TrackingNumber,
		update.TextPreview,
		timingsJSON,
		update.ErrorCode,
		update.ErrorMessage,
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to upsert scan (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// GetScan fetches one scan row for status queries.
func (s *ScanStore) GetScan(ctx context.Context, jobID string) (*ScanUpdate, error) {
	query := `
		SELECT id, status,
		       COALESCE(recipient_name, ''), COALESCE(room_number, ''),
		       COALESCE(shipping_company, ''), COALESCE(tracking_number, ''),
		       COALESCE(text_preview, ''), COALESCE(timings, '{}'::jsonb),
		       COALESCE(error_code, ''), COALESCE(error_message, '')
		FROM parcel_scans
		WHERE id = $1::uuid
	`

	var scan ScanUpdate
	var timingsJSON []byte
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&scan.JobID, &scan.Status,
		&scan.RecipientName, &scan.RoomNumber,
		&scan.ShippingCompany, &scan.TrackingNumber,
		&scan.TextPreview, &timingsJSON,
		&scan.ErrorCode, &scan.ErrorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scan not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch scan %s: %w", jobID, err)
	}

	if err := json.Unmarshal(timingsJSON, &scan.Timings); err != nil {
		return nil, fmt.Errorf("failed to decode timings for scan %s: %w", jobID, err)
	}

	return &scan, nil
}

// Ping verifies database connectivity.
func (s *ScanStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *ScanStore) Close() error {
	return s.db.Close()
}
