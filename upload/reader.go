package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Reader turns a path into a Candidate. Stat reads metadata only so a
// candidate can be validated before its bytes are loaded.
type Reader interface {
	Stat(path string) (Candidate, error)
	ReadAll(ctx context.Context, c Candidate) ([]byte, error)
}

// FileSystem reads candidates from local disk
type FileSystem struct{}

// Stat describes the file at path. The declared type comes from the file
// extension and is empty when the extension is not an image type.
func (FileSystem) Stat(path string) (Candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to access file: %w", err)
	}
	if info.IsDir() {
		return Candidate{}, fmt.Errorf("path is a directory, not a file")
	}

	return Candidate{
		Name: filepath.Base(path),
		Path: path,
		Type: TypeForExtension(filepath.Ext(path)),
		Size: info.Size(),
	}, nil
}

// ReadAll loads the candidate's bytes. It refuses files that grew past
// MaxSize since they were stat'ed.
func (FileSystem) ReadAll(ctx context.Context, c Candidate) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Path == "" {
		return nil, fmt.Errorf("candidate %q has no path", c.Name)
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > MaxSize {
		return nil, &ValidationError{Reason: TooLarge, Type: c.Type, Size: int64(len(data))}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

// TypeForExtension maps an image file extension to its media type
func TypeForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return TypePNG
	case ".jpg", ".jpeg":
		return TypeJPEG
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tiff", ".tif":
		return "image/tiff"
	default:
		return ""
	}
}
