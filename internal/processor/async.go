package processor

import (
	"context"
	"fmt"

	perrors "github.com/adverant/nexus/docconvert-worker/internal/errors"
)

// ConvertOutcome is the single value delivered by ConvertAsync.
type ConvertOutcome struct {
	Result *ConversionResult
	Err    error
}

// ConvertAsync runs Convert on its own goroutine. The returned channel
// yields exactly one outcome and is then closed, so callers may either
// receive once or range over it.
func (c *Converter) ConvertAsync(ctx context.Context, req ConvertRequest) <-chan ConvertOutcome {
	out := make(chan ConvertOutcome, 1)

	go func() {
		defer close(out)

		var outcome ConvertOutcome
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Conversion panicked", "path", req.PDFPath, "panic", r)
					outcome = ConvertOutcome{Err: perrors.NewConversionFailedError(req.PDFPath, "", fmt.Errorf("panic: %v", r))}
				}
			}()
			res, err := c.Convert(ctx, req)
			outcome = ConvertOutcome{Result: res, Err: err}
		}()

		out <- outcome
	}()

	return out
}
