package fetch

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// VerifyPDF checks that the downloaded file is a structurally valid PDF.
// Viewers occasionally serve an HTML error page with a .pdf name; catching
// that here keeps garbage out of the download directory's ledger.
func VerifyPDF(path string) error {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return fmt.Errorf("fetch: invalid pdf %s: %w", path, err)
	}
	return nil
}
