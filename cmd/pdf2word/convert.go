package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/docconvert-worker/internal/config"
	"github.com/adverant/nexus/docconvert-worker/internal/processor"
)

func newConvertCmd() *cobra.Command {
	var (
		in, out, strategy string
		quiet             bool
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a PDF to .docx",
		Long: `Converts a PDF to .docx. PDFs with a text layer are extracted directly,
scanned PDFs are rendered at 300 DPI and run through OCR. Ctrl-C stops the
conversion between pages and leaves no output behind.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			override, ok := processor.ParseStrategyOverride(strategy)
			if !ok {
				return fmt.Errorf("unknown strategy %q", strategy)
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
			var observer processor.Observer
			if !quiet {
				observer = processor.ObserverFunc(func(p processor.Progress) {
					printProgress(stderr, p)
				})
			}
			converter := processor.NewConverterFromConfig(cfg, observer)

			outcome := <-converter.ConvertAsync(cmd.Context(), processor.ConvertRequest{
				PDFPath:    in,
				OutputPath: out,
				Override:   override,
			})
			if outcome.Err != nil {
				return outcome.Err
			}

			res := outcome.Result
			size := ""
			if st, err := os.Stat(res.OutputPath); err == nil {
				size = humanize.Bytes(uint64(st.Size()))
			}
			fmt.Fprintf(stdout, "Converted %s -> %s (%s, %d pages, %s, %s)\n",
				res.PDFPath, res.OutputPath, res.Strategy, res.PageCount, size, res.Duration.Round(time.Millisecond))
			if res.Degraded {
				fmt.Fprintln(stdout, "warning: OCR is not available on this system, used direct text extraction")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "input PDF")
	cmd.Flags().StringVar(&out, "out", "", "output .docx (default: input name with .docx)")
	cmd.Flags().StringVar(&strategy, "strategy", "auto", "auto, force-direct or force-ocr")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func printProgress(w io.Writer, p processor.Progress) {
	switch p.Phase {
	case processor.PhaseRasterize:
		fmt.Fprintf(w, "page %d of %d rasterized\n", p.Page, p.Total)
	case processor.PhaseRecognize:
		fmt.Fprintf(w, "page %d of %d recognized\n", p.Page, p.Total)
	case processor.PhaseDegrade:
		fmt.Fprintln(w, "OCR unavailable, falling back to direct extraction")
	case processor.PhaseDone:
	default:
		fmt.Fprintf(w, "%s...\n", p.Phase)
	}
}
