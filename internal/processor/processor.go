/**
 * Document Processor for the conversion worker
 *
 * Dispatches queued jobs to the converter or the mutator:
 * - convert: PDF (local path, URL or inline bytes) to .docx
 * - search, highlight, replace, append, info on .docx files
 * Job progress is recorded through a JobStatusStore when one is configured.
 */

package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adverant/nexus/docconvert-worker/internal/clients"
	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
	"github.com/adverant/nexus/docconvert-worker/internal/logging"
	"github.com/adverant/nexus/docconvert-worker/internal/storage"
)

// JobType selects what a job does.
type JobType string

const (
	JobConvert   JobType = "convert"
	JobSearch    JobType = "search"
	JobHighlight JobType = "highlight"
	JobReplace   JobType = "replace"
	JobAppend    JobType = "append"
	JobInfo      JobType = "info"
)

// ParseJobType validates a job type string.
func ParseJobType(s string) (JobType, bool) {
	switch t := JobType(s); t {
	case JobConvert, JobSearch, JobHighlight, JobReplace, JobAppend, JobInfo:
		return t, true
	}
	return "", false
}

// DocumentProcessorInterface defines the interface for job processing
type DocumentProcessorInterface interface {
	ProcessJob(ctx context.Context, req *JobRequest) (*JobResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error
}

// JobStatusStore persists job progress.
type JobStatusStore interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ArtifactPublisher uploads finished documents for remote download.
type ArtifactPublisher interface {
	UploadArtifact(ctx context.Context, req *clients.ArtifactUploadRequest) (*clients.ArtifactUploadResponse, error)
}

const (
	artifactSourceService = "docconvert-worker"

	warningDegraded       = "ocr_unavailable_degraded_to_direct"
	warningArtifactFailed = "artifact_upload_failed"
)

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Converter   *Converter
	Mutator     *Mutator
	Store       JobStatusStore    // optional
	Artifacts   ArtifactPublisher // optional
	TempDir     string
	MaxFileSize int64
}

// JobRequest is one unit of work taken from a queue.
type JobRequest struct {
	JobID      string
	Type       JobType
	PDFPath    string
	PDFURL     string
	PDFData    []byte
	DocPath    string
	OutputPath string
	Strategy   string
	Keyword    string
	OldText    string
	NewText    string
	Text       string
	Metadata   map[string]interface{}
}

// JobResult is what a finished job reports back.
type JobResult struct {
	JobID            string         `json:"jobId"`
	Type             JobType        `json:"type"`
	OutputPath       string         `json:"outputPath,omitempty"`
	Strategy         Strategy       `json:"strategy,omitempty"`
	PageCount        int            `json:"pageCount,omitempty"`
	Degraded         bool           `json:"degraded,omitempty"`
	Confidence       float64        `json:"confidence,omitempty"`
	Count            int            `json:"count"`
	Matches          []SearchResult `json:"matches,omitempty"`
	Info             *DocumentInfo  `json:"info,omitempty"`
	ArtifactID       string         `json:"artifactId,omitempty"`
	ArtifactURL      string         `json:"artifactUrl,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
}

// DocumentProcessor handles queued jobs
type DocumentProcessor struct {
	config     *ProcessorConfig
	converter  *Converter
	mutator    *Mutator
	store      JobStatusStore
	artifacts  ArtifactPublisher
	downloader *downloader
	logger     *logging.Logger
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(cfg *ProcessorConfig) (*DocumentProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Converter == nil {
		return nil, fmt.Errorf("converter is required")
	}

	mutator := cfg.Mutator
	if mutator == nil {
		mutator = NewMutator()
	}

	logger := logging.NewLogger("processor")
	if cfg.Store == nil {
		logger.Warn("Job store not configured, job status will not be persisted")
	}

	return &DocumentProcessor{
		config:     cfg,
		converter:  cfg.Converter,
		mutator:    mutator,
		store:      cfg.Store,
		artifacts:  cfg.Artifacts,
		downloader: newDownloader(cfg.MaxFileSize),
		logger:     logger,
	}, nil
}

// ProcessJob runs one job to completion. Errors are *errors.ProcessingError
// tagged with the job ID.
func (p *DocumentProcessor) ProcessJob(ctx context.Context, req *JobRequest) (*JobResult, error) {
	if req == nil || req.JobID == "" {
		return nil, perrors.NewInvalidJobError("", "job ID is required")
	}

	startTime := time.Now()
	p.logger.Info(fmt.Sprintf("[Job %s] Processing %s job", req.JobID, req.Type))

	var (
		result *JobResult
		err    error
	)

	switch req.Type {
	case JobConvert:
		result, err = p.processConvert(ctx, req)
	case JobSearch:
		result, err = p.processSearch(req)
	case JobHighlight:
		result, err = p.processHighlight(req)
	case JobReplace:
		result, err = p.processReplace(req)
	case JobAppend:
		result, err = p.processAppend(req)
	case JobInfo:
		result, err = p.processInfo(req)
	default:
		err = perrors.NewInvalidJobError(req.JobID, fmt.Sprintf("unknown job type %q", req.Type))
	}

	if err != nil {
		p.logger.Error(fmt.Sprintf("[Job %s] Failed", req.JobID), "error", err)
		return nil, tagJob(err, req.JobID)
	}

	if result.Degraded {
		result.Warnings = append(result.Warnings, warningDegraded)
	}
	if p.artifacts != nil && result.OutputPath != "" {
		p.publish(ctx, req, result)
	}

	result.JobID = req.JobID
	result.Type = req.Type
	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()

	p.logger.Info(fmt.Sprintf("[Job %s] Complete", req.JobID),
		"output", result.OutputPath,
		"count", result.Count,
		"durationMs", result.ProcessingTimeMs)
	return result, nil
}

// publish uploads the job's output document. Failure is not fatal: the
// local file is still in place and the job carries a warning.
func (p *DocumentProcessor) publish(ctx context.Context, req *JobRequest, result *JobResult) {
	p.logger.Info(fmt.Sprintf("[Job %s] Publishing output", req.JobID), "path", result.OutputPath)

	data, err := os.ReadFile(result.OutputPath)
	if err == nil {
		var resp *clients.ArtifactUploadResponse
		resp, err = p.artifacts.UploadArtifact(ctx, &clients.ArtifactUploadRequest{
			FileBuffer:    data,
			Filename:      filepath.Base(result.OutputPath),
			MimeType:      clients.DocxMimeType,
			SourceService: artifactSourceService,
			SourceID:      req.JobID,
			Metadata: map[string]interface{}{
				"jobType":   string(req.Type),
				"strategy":  string(result.Strategy),
				"pageCount": result.PageCount,
			},
		})
		if err == nil {
			result.ArtifactID = resp.Artifact.ID
			result.ArtifactURL = resp.Artifact.DownloadURL
			return
		}
	}

	p.logger.Warn(fmt.Sprintf("[Job %s] WARNING: Failed to publish output, it stays local only", req.JobID), "error", err)
	result.Warnings = append(result.Warnings, warningArtifactFailed)
}

func (p *DocumentProcessor) processConvert(ctx context.Context, req *JobRequest) (*JobResult, error) {
	override, ok := ParseStrategyOverride(req.Strategy)
	if !ok {
		return nil, perrors.NewInvalidJobError(req.JobID, fmt.Sprintf("unknown strategy %q", req.Strategy))
	}

	pdfPath := req.PDFPath
	if pdfPath == "" {
		if req.PDFURL == "" && len(req.PDFData) == 0 {
			return nil, perrors.NewInvalidJobError(req.JobID, "pdfPath, pdfUrl or pdfBuffer is required")
		}
		if req.OutputPath == "" {
			return nil, perrors.NewInvalidJobError(req.JobID, "outputPath is required without a local pdfPath")
		}

		workDir, err := os.MkdirTemp(p.config.TempDir, "job-*")
		if err != nil {
			return nil, perrors.NewIOFailureError(p.config.TempDir, err)
		}
		defer os.RemoveAll(workDir)
		pdfPath = filepath.Join(workDir, "source.pdf")

		// Step 1: materialize the source PDF
		if len(req.PDFData) > 0 {
			p.logger.Info(fmt.Sprintf("[Job %s] Step 1: Using inline PDF (%d bytes)", req.JobID, len(req.PDFData)))
			if err := os.WriteFile(pdfPath, req.PDFData, 0o600); err != nil {
				return nil, perrors.NewIOFailureError(pdfPath, err)
			}
		} else {
			p.logger.Info(fmt.Sprintf("[Job %s] Step 1: Downloading PDF", req.JobID), "url", req.PDFURL)
			if err := p.downloader.fetch(ctx, req.JobID, req.PDFURL, pdfPath); err != nil {
				return nil, perrors.NewIOFailureError(req.PDFURL, err)
			}
		}
	}

	p.logger.Info(fmt.Sprintf("[Job %s] Step 2: Converting", req.JobID), "path", pdfPath, "strategy", string(override))
	conv, err := p.converter.Convert(ctx, ConvertRequest{
		PDFPath:    pdfPath,
		OutputPath: req.OutputPath,
		Override:   override,
	})
	if err != nil {
		return nil, err
	}

	return &JobResult{
		OutputPath: conv.OutputPath,
		Strategy:   conv.Strategy,
		PageCount:  conv.PageCount,
		Degraded:   conv.Degraded,
		Confidence: conv.Confidence,
	}, nil
}

func (p *DocumentProcessor) processSearch(req *JobRequest) (*JobResult, error) {
	if err := requireDoc(req); err != nil {
		return nil, err
	}
	matches, err := p.mutator.Search(req.DocPath, req.Keyword)
	if err != nil {
		return nil, err
	}
	return &JobResult{Count: len(matches), Matches: matches}, nil
}

func (p *DocumentProcessor) processHighlight(req *JobRequest) (*JobResult, error) {
	if err := requireDoc(req); err != nil {
		return nil, err
	}
	out, err := p.mutator.Highlight(req.DocPath, req.Keyword, req.OutputPath)
	if err != nil {
		return nil, err
	}
	return &JobResult{OutputPath: out.Path, Count: out.Count}, nil
}

func (p *DocumentProcessor) processReplace(req *JobRequest) (*JobResult, error) {
	if err := requireDoc(req); err != nil {
		return nil, err
	}
	out, err := p.mutator.Replace(req.DocPath, req.OldText, req.NewText, req.OutputPath)
	if err != nil {
		return nil, err
	}
	return &JobResult{OutputPath: out.Path, Count: out.Count}, nil
}

func (p *DocumentProcessor) processAppend(req *JobRequest) (*JobResult, error) {
	if err := requireDoc(req); err != nil {
		return nil, err
	}
	out, err := p.mutator.Append(req.DocPath, req.Text, req.OutputPath)
	if err != nil {
		return nil, err
	}
	return &JobResult{OutputPath: out.Path, Count: out.Count}, nil
}

func (p *DocumentProcessor) processInfo(req *JobRequest) (*JobResult, error) {
	if err := requireDoc(req); err != nil {
		return nil, err
	}
	info, err := p.mutator.Info(req.DocPath)
	if err != nil {
		return nil, err
	}
	return &JobResult{Info: info}, nil
}

func requireDoc(req *JobRequest) error {
	if req.DocPath == "" {
		return perrors.NewInvalidJobError(req.JobID, "docPath is required")
	}
	return nil
}

func tagJob(err error, jobID string) error {
	var pe *perrors.ProcessingError
	if errors.As(err, &pe) {
		return pe.WithJob(jobID)
	}
	return err
}

// UpdateJobStatus updates job status in database. Known metadata keys are
// lifted into their own columns; everything is kept in metadata as well.
func (p *DocumentProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, progress int, metadata map[string]interface{}) error {
	if p.store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:    jobID,
		Status:   status,
		Metadata: metadata,
	}

	if metadata != nil {
		metadata["progress"] = progress
		if jobType, ok := metadata["jobType"].(string); ok {
			update.JobType = jobType
		}
		if input, ok := metadata["inputPath"].(string); ok {
			update.InputPath = input
		}
		if output, ok := metadata["outputPath"].(string); ok {
			update.OutputPath = output
		}
		if strategy, ok := metadata["strategy"].(string); ok {
			update.Strategy = strategy
		}
		if pages, ok := metadata["pageCount"].(int); ok {
			update.PageCount = pages
		}
		if count, ok := metadata["count"].(int); ok {
			update.MatchCount = count
		}
		if confidence, ok := metadata["confidence"].(float64); ok {
			update.Confidence = confidence
		}
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if warnings, ok := metadata["warnings"].([]string); ok {
			update.Warnings = warnings
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			update.ErrorCode = "PROCESSING_ERROR"
			if code, ok := metadata["errorCode"].(string); ok && code != "" {
				update.ErrorCode = code
			}
			update.ErrorMessage = errorMsg
		}
	}

	if err := p.store.UpdateJobStatus(ctx, update); err != nil {
		return perrors.NewStorageFailedError(jobID, err)
	}
	return nil
}

// StatusMetadata builds the metadata UpdateJobStatus understands from a
// request and, when available, its result or error.
func StatusMetadata(req *JobRequest, result *JobResult, jobErr error) map[string]interface{} {
	metadata := map[string]interface{}{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	metadata["jobType"] = string(req.Type)
	switch {
	case req.PDFPath != "":
		metadata["inputPath"] = req.PDFPath
	case req.PDFURL != "":
		metadata["inputPath"] = req.PDFURL
	case req.DocPath != "":
		metadata["inputPath"] = req.DocPath
	}

	if result != nil {
		metadata["outputPath"] = result.OutputPath
		metadata["strategy"] = string(result.Strategy)
		metadata["pageCount"] = result.PageCount
		metadata["count"] = result.Count
		metadata["confidence"] = result.Confidence
		metadata["processingTime"] = result.ProcessingTimeMs
		if len(result.Warnings) > 0 {
			metadata["warnings"] = result.Warnings
		}
		if result.ArtifactID != "" {
			metadata["artifactId"] = result.ArtifactID
			metadata["artifactUrl"] = result.ArtifactURL
		}
	}

	if jobErr != nil {
		metadata["error"] = jobErr.Error()
		metadata["errorCode"] = string(perrors.CodeOf(jobErr))
	}
	return metadata
}
