package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
	"github.com/adverant/nexus/docconvert-worker/internal/logging"
	"github.com/adverant/nexus/docconvert-worker/internal/processor"
	"github.com/adverant/nexus/docconvert-worker/internal/storage"
)

// TaskTypeJob is the asynq task type carrying a JobData payload.
const TaskTypeJob = "docconvert:job"

// defaultProcessingTimeout applies when no timeout is configured.
const defaultProcessingTimeout = 10 * time.Minute

// JobData is the wire form of one job, shared by both queue backends.
type JobData struct {
	JobID      string                 `json:"jobId"`
	Type       string                 `json:"type"`
	PDFPath    string                 `json:"pdfPath,omitempty"`
	PDFURL     string                 `json:"pdfUrl,omitempty"`
	PDFBuffer  []byte                 `json:"pdfBuffer,omitempty"` // custom UnmarshalJSON
	DocPath    string                 `json:"docPath,omitempty"`
	OutputPath string                 `json:"outputPath,omitempty"`
	Strategy   string                 `json:"strategy,omitempty"`
	Keyword    string                 `json:"keyword,omitempty"`
	OldText    string                 `json:"oldText,omitempty"`
	NewText    string                 `json:"newText,omitempty"`
	Text       string                 `json:"text,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts pdfBuffer either as a base64 string or as a
// Node.js Buffer object ({"type":"Buffer","data":[...]}).
func (j *JobData) UnmarshalJSON(data []byte) error {
	type Alias JobData
	aux := &struct {
		PDFBuffer interface{} `json:"pdfBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(j),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}

	j.PDFBuffer = nil
	switch v := aux.PDFBuffer.(type) {
	case nil:
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 pdfBuffer: %w", err)
		}
		j.PDFBuffer = decoded
	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		j.PDFBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			j.PDFBuffer[i] = byte(byteVal)
		}
	default:
		return fmt.Errorf("pdfBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// Validate checks the fields every job needs, assigning a job ID when the
// producer left it empty.
func (j *JobData) Validate() error {
	if j.JobID == "" {
		j.JobID = uuid.NewString()
	} else if _, err := uuid.Parse(j.JobID); err != nil {
		return perrors.NewInvalidJobError(j.JobID, "job ID must be a UUID")
	}

	jobType, ok := processor.ParseJobType(j.Type)
	if !ok {
		return perrors.NewInvalidJobError(j.JobID, fmt.Sprintf("unknown job type %q", j.Type))
	}

	switch jobType {
	case processor.JobConvert:
		if j.PDFPath == "" && j.PDFURL == "" && len(j.PDFBuffer) == 0 {
			return perrors.NewInvalidJobError(j.JobID, "convert jobs need pdfPath, pdfUrl or pdfBuffer")
		}
		if _, ok := processor.ParseStrategyOverride(j.Strategy); !ok {
			return perrors.NewInvalidJobError(j.JobID, fmt.Sprintf("unknown strategy %q", j.Strategy))
		}
	default:
		if j.DocPath == "" {
			return perrors.NewInvalidJobError(j.JobID, fmt.Sprintf("%s jobs need docPath", jobType))
		}
	}
	return nil
}

// ToRequest converts the payload to a processor request.
func (j *JobData) ToRequest() *processor.JobRequest {
	return &processor.JobRequest{
		JobID:      j.JobID,
		Type:       processor.JobType(j.Type),
		PDFPath:    j.PDFPath,
		PDFURL:     j.PDFURL,
		PDFData:    j.PDFBuffer,
		DocPath:    j.DocPath,
		OutputPath: j.OutputPath,
		Strategy:   j.Strategy,
		Keyword:    j.Keyword,
		OldText:    j.OldText,
		NewText:    j.NewText,
		Text:       j.Text,
		Metadata:   j.Metadata,
	}
}

// isPermanent reports errors that a retry cannot fix.
func isPermanent(err error) bool {
	return perrors.Is(err, perrors.ErrorInvalidJob) ||
		perrors.Is(err, perrors.ErrorNotFound) ||
		perrors.Is(err, perrors.ErrorUnsupportedOrCorrupt)
}

// jobRunner wraps ProcessJob with the per-job timeout and status updates
// common to both consumers.
type jobRunner struct {
	processor processor.DocumentProcessorInterface
	timeout   time.Duration
	logger    *logging.Logger
}

func newJobRunner(proc processor.DocumentProcessorInterface, timeoutMs int64, logger *logging.Logger) *jobRunner {
	timeout := defaultProcessingTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &jobRunner{processor: proc, timeout: timeout, logger: logger}
}

// run marks the job processing and executes it under the timeout. A
// deadline hit is reported as a ProcessingTimeout error.
func (r *jobRunner) run(ctx context.Context, req *processor.JobRequest) (*processor.JobResult, error) {
	startTime := time.Now()

	if err := r.processor.UpdateJobStatus(ctx, req.JobID, storage.StatusProcessing, 0, processor.StatusMetadata(req, nil, nil)); err != nil {
		r.logger.Warn(fmt.Sprintf("[Job %s] Could not record processing status", req.JobID), "error", err)
	}

	r.logger.Debug(fmt.Sprintf("[Job %s] Processing timeout set to: %v", req.JobID, r.timeout))
	processCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.processor.ProcessJob(processCtx, req)
	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			duration := time.Since(startTime)
			r.logger.Error(fmt.Sprintf("[Job %s] Processing timed out after %v (timeout: %v)", req.JobID, duration, r.timeout))
			return nil, perrors.NewProcessingTimeoutError(req.JobID, r.timeout, err)
		}
		return nil, err
	}
	return result, nil
}

// finish records the terminal status of a job.
func (r *jobRunner) finish(ctx context.Context, req *processor.JobRequest, result *processor.JobResult, jobErr error) {
	status := storage.StatusCompleted
	progress := 100
	if jobErr != nil {
		status = storage.StatusFailed
	}

	if err := r.processor.UpdateJobStatus(ctx, req.JobID, status, progress, processor.StatusMetadata(req, result, jobErr)); err != nil {
		r.logger.Warn(fmt.Sprintf("[Job %s] Could not record %s status", req.JobID, status), "error", err)
	}
}
