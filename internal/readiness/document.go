package readiness

import (
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Document is the result of a successful load.
type Document struct {
	Pages int
}

// DocumentLoader opens a file as a printable document.
type DocumentLoader interface {
	Load(path string) (Document, error)
}

var disableConfigDir sync.Once

// PDFLoader parses files with pdfcpu. A file that is still being written
// fails to parse because its cross-reference table is missing or truncated.
type PDFLoader struct{}

// Load implements DocumentLoader.
func (PDFLoader) Load(path string) (Document, error) {
	// pdfcpu would otherwise create a config directory under the user's home.
	disableConfigDir.Do(api.DisableConfigDir)

	pages, err := api.PageCountFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if pages == 0 {
		return Document{}, fmt.Errorf("%s: %w", path, errEmptyDocument)
	}
	return Document{Pages: pages}, nil
}
