package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/docconvert-worker/internal/config"
	"github.com/adverant/nexus/docconvert-worker/internal/processor"
	"github.com/adverant/nexus/docconvert-worker/internal/storage"
)

// jobStore is the read side of the job table.
type jobStore interface {
	GetJobByID(ctx context.Context, jobID string) (*storage.JobRecord, error)
	Close() error
}

// openJobStore is swapped out in tests.
var openJobStore = func(databaseURL string) (jobStore, error) {
	return storage.NewPostgresClient(databaseURL)
}

func newStatusCmd() *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the tracked state of a queued job",
		Long:  `Reads a job's row from the job table. Requires DATABASE_URL, the same database the worker records status in.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is not set, job status is only tracked in PostgreSQL")
			}

			store, err := openJobStore(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetJobByID(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			printJob(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "job ID printed by enqueue")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func printJob(w io.Writer, rec *storage.JobRecord) {
	fmt.Fprintf(w, "Job:        %s\n", rec.ID)
	fmt.Fprintf(w, "Type:       %s\n", rec.JobType)
	fmt.Fprintf(w, "Status:     %s\n", rec.Status)
	if rec.InputPath != "" {
		fmt.Fprintf(w, "Input:      %s\n", rec.InputPath)
	}
	if rec.OutputPath != "" {
		fmt.Fprintf(w, "Output:     %s\n", rec.OutputPath)
	}
	if rec.Strategy != "" {
		fmt.Fprintf(w, "Strategy:   %s\n", rec.Strategy)
	}
	if rec.PageCount > 0 {
		fmt.Fprintf(w, "Pages:      %s\n", humanize.Comma(int64(rec.PageCount)))
	}
	switch processor.JobType(rec.JobType) {
	case processor.JobSearch, processor.JobHighlight, processor.JobReplace:
		fmt.Fprintf(w, "Matches:    %s\n", humanize.Comma(int64(rec.MatchCount)))
	}
	if rec.Confidence > 0 {
		fmt.Fprintf(w, "Confidence: %.2f\n", rec.Confidence)
	}
	if rec.ProcessingTimeMs > 0 {
		fmt.Fprintf(w, "Duration:   %s\n", time.Duration(rec.ProcessingTimeMs)*time.Millisecond)
	}
	if rec.ErrorCode != "" || rec.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:      %s: %s\n", rec.ErrorCode, rec.ErrorMessage)
	}
	if len(rec.Warnings) > 0 {
		fmt.Fprintf(w, "Warnings:   %s\n", strings.Join(rec.Warnings, ", "))
	}
	if id, ok := rec.Metadata["artifactId"].(string); ok && id != "" {
		fmt.Fprintf(w, "Artifact:   %s\n", id)
	}
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:    %s\n", humanize.Time(rec.UpdatedAt))
	}
}
