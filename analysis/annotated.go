package analysis

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// AnnotatedImage decodes the annotated image. A data URI prefix is tolerated
// although the service sends bare base64.
func (r *Result) AnnotatedImage() ([]byte, error) {
	if !r.HasAnnotatedImage() {
		return nil, fmt.Errorf("no annotated image in result")
	}

	s := strings.TrimSpace(r.AnnotatedImageBase64)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode annotated image: %w", err)
	}
	return data, nil
}

// SaveAnnotated writes the annotated image next to sourcePath as
// <name>.annotated.<ext>, the extension chosen from the image content. It
// returns the written path.
func (r *Result) SaveAnnotated(sourcePath string) (string, error) {
	data, err := r.AnnotatedImage()
	if err != nil {
		return "", err
	}

	ext := ".png"
	if http.DetectContentType(data) == "image/jpeg" {
		ext = ".jpg"
	}

	base := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	if base == "" {
		base = "analysis"
	}
	out := base + ".annotated" + ext

	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write annotated image: %w", err)
	}
	return out, nil
}
