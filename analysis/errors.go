package analysis

import "fmt"

// UserMessage is shown for every analysis failure; the cause goes to the log
const UserMessage = "Analysis failed. Please try again."

// ErrorKind classifies an analysis failure
type ErrorKind int

const (
	// KindNetwork means no response was received
	KindNetwork ErrorKind = iota
	// KindHTTPStatus means the service answered with a non-2xx status
	KindHTTPStatus
	// KindParse means the response body was not a valid result
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is returned by Client.Submit
type Error struct {
	Kind ErrorKind

	// StatusCode is set for KindHTTPStatus
	StatusCode int

	// Body holds the start of the response body for KindHTTPStatus and KindParse
	Body string

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		if e.Body != "" {
			return fmt.Sprintf("analysis service error (status %d): %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("analysis service error (status %d)", e.StatusCode)
	case KindParse:
		return fmt.Sprintf("failed to parse analysis response: %v", e.Err)
	default:
		return fmt.Sprintf("analysis request failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
