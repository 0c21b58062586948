// Package validate holds the syntactic checks an image must pass before it
// is submitted for analysis. Validation is pure: it never touches the
// network and files failing it never enter the batch.
package validate

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxFileSize is the largest accepted image payload (10MB), matching the
// analysis service's upload limit.
const MaxFileSize = 10 * 1024 * 1024

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// Result lists every reason a file was rejected. A file with no errors is
// valid.
type Result struct {
	Valid  bool
	Errors []string
}

// File checks extension, content type and size. All failures are collected
// so the user sees every problem at once.
func File(name string, data []byte) Result {
	var errs []string

	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := extensionTypes[ext]; !ok {
		errs = append(errs, fmt.Sprintf("unsupported file extension %q (allowed: .jpg, .jpeg, .png, .webp)", ext))
	}

	if len(data) == 0 {
		errs = append(errs, "file is empty")
	} else {
		contentType := sniffType(data)
		if !allowedTypes[contentType] {
			errs = append(errs, fmt.Sprintf("unsupported content type %q (allowed: JPEG, PNG, WebP)", contentType))
		}
	}

	if len(data) > MaxFileSize {
		errs = append(errs, fmt.Sprintf("file size %d bytes exceeds the %d byte limit", len(data), MaxFileSize))
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// sniffType detects the content type from the payload itself so a renamed
// file cannot bypass the extension check.
func sniffType(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	contentType := http.DetectContentType(data)
	// DetectContentType includes parameters for some types
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return contentType
}
