// Package upload holds the candidate image a user picked and the policy that
// decides whether it may be sent for analysis.
package upload

import "fmt"

// Media types the analysis service understands
const (
	TypePNG  = "image/png"
	TypeJPEG = "image/jpeg"
	TypeJPG  = "image/jpg"
)

// MaxSize is the largest accepted upload (10MB). A file of exactly MaxSize
// bytes is accepted.
const MaxSize int64 = 10 * 1024 * 1024

// Profile names an accepted-type set
type Profile string

const (
	// ProfileStrict accepts PNG only
	ProfileStrict Profile = "strict"
	// ProfileTolerant accepts PNG and JPEG
	ProfileTolerant Profile = "tolerant"
)

// Types returns the media types accepted by the profile
func (p Profile) Types() ([]string, error) {
	switch p {
	case ProfileStrict:
		return []string{TypePNG}, nil
	case ProfileTolerant:
		return []string{TypePNG, TypeJPEG, TypeJPG}, nil
	default:
		return nil, fmt.Errorf("unknown accept profile %q (want %q or %q)", string(p), ProfileStrict, ProfileTolerant)
	}
}

// Candidate is a user-selected image awaiting validation and submission
type Candidate struct {
	// Name is the file name shown to the user and sent in the multipart part
	Name string

	// Path is where the file was read from, empty for in-memory candidates
	Path string

	// Type is the declared media type
	Type string

	// Size is the byte size as reported by the file's metadata
	Size int64

	// Data holds the file bytes once read
	Data []byte
}

// Reason tags why a candidate was rejected
type Reason int

const (
	InvalidType Reason = iota
	TooLarge
)

func (r Reason) String() string {
	switch r {
	case InvalidType:
		return "invalid type"
	case TooLarge:
		return "too large"
	default:
		return "unknown"
	}
}

// ValidationError reports a rejected candidate
type ValidationError struct {
	Reason   Reason
	Type     string
	Size     int64
	Accepted []string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case TooLarge:
		return fmt.Sprintf("file size %d exceeds maximum %d bytes (10MB)", e.Size, MaxSize)
	default:
		return fmt.Sprintf("unsupported media type %q", e.Type)
	}
}

// UserMessage is the banner text for the rejection
func (e *ValidationError) UserMessage() string {
	if e.Reason == TooLarge {
		return "File size must be less than 10MB"
	}
	if len(e.Accepted) == 1 && e.Accepted[0] == TypePNG {
		return "Please select a valid PNG image file"
	}
	return "Please select a valid image file (JPG or PNG)"
}
