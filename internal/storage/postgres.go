/**
 * PostgreSQL Client for the conversion worker
 *
 * Tracks conversion and mutation jobs in docconvert.conversion_jobs.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
)

const schemaSQL = `
	CREATE SCHEMA IF NOT EXISTS docconvert;

	CREATE TABLE IF NOT EXISTS docconvert.conversion_jobs (
		id                 UUID PRIMARY KEY,
		job_type           TEXT NOT NULL,
		input_path         TEXT NOT NULL DEFAULT '',
		output_path        TEXT,
		status             TEXT NOT NULL,
		strategy           TEXT,
		page_count         INTEGER,
		match_count        INTEGER,
		confidence         NUMERIC(5,4),
		processing_time_ms BIGINT,
		error_code         TEXT,
		error_message      TEXT,
		warnings           TEXT[] NOT NULL DEFAULT '{}',
		metadata           JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS conversion_jobs_status_idx
		ON docconvert.conversion_jobs (status, updated_at);
`

// Job statuses written by the worker.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update. Zero values leave the stored
// column unchanged, except error fields which are cleared.
type JobUpdate struct {
	JobID            string
	JobType          string
	InputPath        string
	OutputPath       string
	Status           string
	Strategy         string
	PageCount        int
	MatchCount       int
	Confidence       float64
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Warnings         []string
	Metadata         map[string]interface{}
}

// JobRecord is a stored job row.
type JobRecord struct {
	ID               string
	JobType          string
	InputPath        string
	OutputPath       string
	Status           string
	Strategy         string
	PageCount        int
	MatchCount       int
	Confidence       float64
	ProcessingTimeMs int64
	ErrorCode        string
	ErrorMessage     string
	Warnings         []string
	Metadata         map[string]interface{}
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// sanitizeConfidence clamps confidence to [0, 1] and rounds it to the four
// decimals NUMERIC(5,4) can hold.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// sanitizeJSONForPostgres strips escapes JSONB rejects: \u0000 is removed
// and other control character escapes become a space.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
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

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the schema, table and index when missing.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create job schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts the job row, creating it on the first update.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	sanitizedConfidence := sanitizeConfidence(update.Confidence)

	metadata := update.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metadataJSON = sanitizeJSONForPostgres(metadataJSON)

	warnings := update.Warnings
	if warnings == nil {
		warnings = []string{}
	}

	query := `
		INSERT INTO docconvert.conversion_jobs (
			id, job_type, input_path, output_path, status, strategy,
			page_count, match_count, confidence, processing_time_ms,
			error_code, error_message, warnings, metadata,
			created_at, updated_at
		) VALUES (
			$1::uuid, COALESCE(NULLIF($2, ''), 'unknown'), $3, NULLIF($4, ''), $5, NULLIF($6, ''),
			NULLIF($7, 0), NULLIF($8, 0), NULLIF($9::NUMERIC(5,4), 0), NULLIF($10, 0),
			NULLIF($11, ''), NULLIF($12, ''), $13, COALESCE($14::jsonb, '{}'::jsonb),
			NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			job_type = CASE WHEN EXCLUDED.job_type = 'unknown'
				THEN docconvert.conversion_jobs.job_type ELSE EXCLUDED.job_type END,
			input_path = COALESCE(NULLIF(EXCLUDED.input_path, ''), docconvert.conversion_jobs.input_path),
			output_path = COALESCE(EXCLUDED.output_path, docconvert.conversion_jobs.output_path),
			strategy = COALESCE(EXCLUDED.strategy, docconvert.conversion_jobs.strategy),
			page_count = COALESCE(EXCLUDED.page_count, docconvert.conversion_jobs.page_count),
			match_count = COALESCE(EXCLUDED.match_count, docconvert.conversion_jobs.match_count),
			confidence = COALESCE(EXCLUDED.confidence, docconvert.conversion_jobs.confidence),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, docconvert.conversion_jobs.processing_time_ms),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			warnings = EXCLUDED.warnings,
			metadata = docconvert.conversion_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.JobType,          // $2
		update.InputPath,        // $3
		update.OutputPath,       // $4
		update.Status,           // $5
		update.Strategy,         // $6
		update.PageCount,        // $7
		update.MatchCount,       // $8
		sanitizedConfidence,     // $9
		update.ProcessingTimeMs, // $10
		update.ErrorCode,        // $11
		update.ErrorMessage,     // $12
		pq.Array(warnings),      // $13
		metadataJSON,            // $14
	).Scan(&returnedID)

	if err == sql.ErrNoRows {
		return fmt.Errorf("job not found: %s", update.JobID)
	}

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// GetJobByID retrieves a job by ID
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (*JobRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, job_type, input_path, output_path, status, strategy,
			page_count, match_count, confidence, processing_time_ms,
			error_code, error_message, warnings, metadata,
			created_at, updated_at
		FROM docconvert.conversion_jobs
		WHERE id = $1::uuid
	`

	var (
		rec                                    JobRecord
		outputPath, strategy                   sql.NullString
		errorCode, errorMessage                sql.NullString
		pageCount, matchCount, processingTime  sql.NullInt64
		confidence                             sql.NullFloat64
		warnings                               pq.StringArray
		metadataJSON                           []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.ID, &rec.JobType, &rec.InputPath, &outputPath, &rec.Status, &strategy,
		&pageCount, &matchCount, &confidence, &processingTime,
		&errorCode, &errorMessage, &warnings, &metadataJSON,
		&rec.CreatedAt, &rec.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	rec.OutputPath = outputPath.String
	rec.Strategy = strategy.String
	rec.PageCount = int(pageCount.Int64)
	rec.MatchCount = int(matchCount.Int64)
	rec.Confidence = confidence.Float64
	rec.ProcessingTimeMs = processingTime.Int64
	rec.ErrorCode = errorCode.String
	rec.ErrorMessage = errorMessage.String
	rec.Warnings = []string(warnings)

	return &rec, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
