/**
 * pdf2word - command line front end
 *
 * Converts PDFs to .docx and edits .docx files synchronously, submits the
 * same operations to the worker queue with "enqueue", and reads tracked
 * job state back with "status".
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
	"github.com/adverant/nexus/docconvert-worker/internal/logging"
)

func main() {
	_ = godotenv.Load(".env")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdf2word",
		Short: "Convert PDFs to Word documents and edit .docx files",
		Long: `pdf2word converts PDFs to .docx, using the text layer when the PDF has one
and OCR (pdftoppm + tesseract) when it is scanned. It also searches,
highlights, replaces and appends text in .docx files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.SetOutput(cmd.ErrOrStderr())
			return logging.Configure(envOr("LOG_LEVEL", "warn"), envOr("LOG_FORMAT", "text"))
		},
	}

	root.AddCommand(
		newConvertCmd(),
		newSearchCmd(),
		newHighlightCmd(),
		newReplaceCmd(),
		newAppendCmd(),
		newInfoCmd(),
		newEnqueueCmd(),
		newStatusCmd(),
	)
	return root
}

// describe renders an error for a person at a terminal.
func describe(err error) string {
	switch perrors.CodeOf(err) {
	case perrors.ErrorNotFound:
		return "file not found: " + err.Error()
	case perrors.ErrorUnsupportedOrCorrupt:
		return "cannot read file (unsupported or corrupt): " + err.Error()
	case perrors.ErrorIOFailure:
		return "cannot write output: " + err.Error()
	case perrors.ErrorConversionFailed:
		return "conversion failed: " + err.Error()
	}
	return err.Error()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
