package readiness

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ContentTyper reports the MIME type of a file.
type ContentTyper interface {
	ContentType(path string) (string, error)
}

// MIMETyper resolves content types from the system extension table first and
// sniffs the file content only when the extension is unknown. A freshly
// created download is usually still empty, so the extension is the more
// reliable signal at notification time.
type MIMETyper struct{}

// ContentType implements ContentTyper. The result never carries parameters
// such as "; charset=utf-8".
func (MIMETyper) ContentType(path string) (string, error) {
	if ext := filepath.Ext(path); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return stripParams(t), nil
		}
	}

	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to detect content type of %s: %w", path, err)
	}
	return stripParams(m.String()), nil
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.ToLower(strings.TrimSpace(t))
}
