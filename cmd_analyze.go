package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"inkcheck/analysis"
)

// runFile analyzes one image without prompts and prints the feedback lines
// to w. It returns the process exit code.
func runFile(ctx context.Context, a *app, path string, w io.Writer) int {
	m := a.machine
	defer m.Reset()

	if err := m.SelectPath(ctx, path); err != nil {
		if b := m.Banner(); b != nil {
			fmt.Fprintln(w, b.Message)
		} else {
			fmt.Fprintln(w, "Error: "+err.Error())
		}
		return 2
	}

	sub, err := m.Analyze(ctx)
	if err != nil {
		fmt.Fprintln(w, "Error: "+err.Error())
		return 1
	}
	select {
	case <-sub.Done():
	case <-ctx.Done():
		fmt.Fprintln(w, "Cancelled")
		return 130
	}

	if err := sub.Err(); err != nil {
		fmt.Fprintln(w, analysis.UserMessage)
		var aerr *analysis.Error
		if errors.As(err, &aerr) {
			fmt.Fprintf(w, "  cause (%s): %v\n", aerr.Kind, aerr)
		}
		return 1
	}

	s := m.Snapshot()
	if !s.HasFeedback() {
		fmt.Fprintln(w, s.Lines[0])
	} else {
		for i, line := range s.Lines {
			fmt.Fprintf(w, "%d. %s\n", i+1, line)
		}
	}

	if saved := a.saveAnnotated(w); saved != "" {
		fmt.Fprintln(w, "Annotated image: "+saved)
	}
	return 0
}
