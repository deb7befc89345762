package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/docconvert-worker/internal/config"
	"github.com/adverant/nexus/docconvert-worker/internal/queue"
)

func newEnqueueCmd() *cobra.Command {
	job := &queue.JobData{}

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit a job to the worker queue",
		Long: `Submits a convert, search, highlight, replace, append or info job to the
configured queue backend and prints the job ID. Use "status" to follow it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			producer, err := queue.NewProducer(&queue.ProducerConfig{
				Backend:    cfg.QueueBackend,
				RedisURL:   cfg.RedisURL,
				QueueName:  cfg.QueueName,
				MaxRetries: cfg.MaxRetries,
			})
			if err != nil {
				return err
			}
			defer producer.Close()

			id, err := producer.Enqueue(cmd.Context(), job)
			if err != nil {
				return err
			}

			return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
				"jobId":   id,
				"queue":   cfg.QueueName,
				"backend": cfg.QueueBackend,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&job.Type, "type", "", "job type: convert, search, highlight, replace, append or info")
	f.StringVar(&job.JobID, "id", "", "job ID (default: random UUID)")
	f.StringVar(&job.PDFPath, "in", "", "input PDF path (convert)")
	f.StringVar(&job.PDFURL, "url", "", "input PDF URL (convert)")
	f.StringVar(&job.DocPath, "doc", "", "input .docx")
	f.StringVar(&job.OutputPath, "out", "", "output path")
	f.StringVar(&job.Strategy, "strategy", "", "auto, force-direct or force-ocr")
	f.StringVar(&job.Keyword, "keyword", "", "keyword (search, highlight)")
	f.StringVar(&job.OldText, "old", "", "text to replace")
	f.StringVar(&job.NewText, "new", "", "replacement text")
	f.StringVar(&job.Text, "text", "", "paragraph text (append)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
