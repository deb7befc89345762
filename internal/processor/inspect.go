package processor

import (
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var disablePdfcpuConfig sync.Once

// pdfcpuInspector parses the PDF structure with pdfcpu.
type pdfcpuInspector struct{}

// NewPDFInspector returns the default inspector.
func NewPDFInspector() PDFInspector {
	disablePdfcpuConfig.Do(api.DisableConfigDir)
	return pdfcpuInspector{}
}

// PageCount reads the cross-reference table and page tree. Files pdfcpu
// cannot read are reported as errors.
func (pdfcpuInspector) PageCount(pdfPath string) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panicked reading %s: %v", pdfPath, r)
		}
	}()

	ctx, err := api.ReadContextFile(pdfPath)
	if err != nil {
		return 0, err
	}
	return ctx.PageCount, nil
}
