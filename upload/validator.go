package upload

import (
	"mime"
	"strings"
)

// Validator checks candidates against the accepted types and MaxSize
type Validator struct {
	accepted []string
	maxSize  int64
}

// NewValidator creates a validator for the given media types. With no types
// it falls back to PNG only.
func NewValidator(types ...string) *Validator {
	v := &Validator{maxSize: MaxSize}
	for _, t := range types {
		if n := normalizeType(t); n != "" {
			v.accepted = append(v.accepted, n)
		}
	}
	if len(v.accepted) == 0 {
		v.accepted = []string{TypePNG}
	}
	return v
}

// NewProfileValidator creates a validator for a named profile
func NewProfileValidator(p Profile) (*Validator, error) {
	types, err := p.Types()
	if err != nil {
		return nil, err
	}
	return NewValidator(types...), nil
}

// Accepted returns a copy of the accepted media types
func (v *Validator) Accepted() []string {
	out := make([]string, len(v.accepted))
	copy(out, v.accepted)
	return out
}

// Extensions returns the file extensions a picker should offer
func (v *Validator) Extensions() []string {
	var exts []string
	for _, t := range v.accepted {
		switch t {
		case TypePNG:
			exts = appendMissing(exts, ".png")
		case TypeJPEG, TypeJPG:
			exts = appendMissing(exts, ".jpg", ".jpeg")
		}
	}
	return exts
}

// Validate returns the candidate unchanged when it may be submitted, or a
// *ValidationError. Size is checked before type.
func (v *Validator) Validate(c Candidate) (Candidate, error) {
	size := c.Size
	if c.Data != nil {
		size = max(size, int64(len(c.Data)))
	}
	if size > v.maxSize {
		return Candidate{}, &ValidationError{Reason: TooLarge, Type: c.Type, Size: size, Accepted: v.Accepted()}
	}

	declared := normalizeType(c.Type)
	for _, t := range v.accepted {
		if declared == t {
			return c, nil
		}
	}
	return Candidate{}, &ValidationError{Reason: InvalidType, Type: c.Type, Size: c.Size, Accepted: v.Accepted()}
}

// normalizeType lowercases a media type and drops its parameters
func normalizeType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(t)
}

func appendMissing(list []string, items ...string) []string {
	for _, item := range items {
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
