package upload

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// Dimensions returns the pixel size of the candidate's image data
func Dimensions(c Candidate) (width, height int, err error) {
	if len(c.Data) == 0 {
		return 0, 0, fmt.Errorf("no image data loaded")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(c.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Describe returns a one-line preview of the candidate
func Describe(c Candidate) string {
	line := fmt.Sprintf("%s (%s)", c.Name, FormatSize(c.Size))
	if w, h, err := Dimensions(c); err == nil {
		line += fmt.Sprintf(", %dx%d px", w, h)
	}
	return line
}

// FormatSize formats a byte size as a human-readable string
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
