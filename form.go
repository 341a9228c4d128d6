package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"inkcheck/narration"
	"inkcheck/session"
	"inkcheck/upload"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
)

// runFormWorkflow runs one select, analyze, review round with huh forms.
// It returns false when the user wants to exit.
func runFormWorkflow(ctx context.Context, a *app) bool {
	m := a.machine
	defer func() {
		if m.State() != session.Idle {
			m.Reset()
		}
	}()

	// Step 1: Select image
	var imagePath string
	startDir, _ := os.Getwd()

	filePicker := huh.NewFilePicker().
		Title("Select a handwriting image").
		Description("PNG" + jpegNote(m.Validator()) + ", up to 10MB").
		Picking(true).
		CurrentDirectory(startDir).
		ShowHidden(false).
		ShowPermissions(false).
		ShowSize(true).
		Height(15).
		AllowedTypes(m.Validator().Extensions()).
		Value(&imagePath)

	err := huh.NewForm(huh.NewGroup(filePicker)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()

	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false
		}
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		return false
	}

	// Step 2: Read and validate
	var selectErr error
	err = spinner.New().
		Title("Reading image...").
		Action(func() {
			selectErr = m.SelectPath(ctx, imagePath)
		}).
		Run()

	if err != nil || selectErr != nil {
		printBanner(m, err)
		return askToContinue()
	}

	retry := false
	for {
		if !retry && !confirmAnalyze(m) {
			return m.State() == session.Idle
		}
		retry = false

		// Step 3: Analyze
		var sub *session.Submission
		var analyzeErr error
		err = spinner.New().
			Title("✎ Reading your handwriting...").
			Action(func() {
				sub, analyzeErr = m.Analyze(ctx)
				if analyzeErr == nil {
					<-sub.Done()
				}
			}).
			Run()

		if err != nil || analyzeErr != nil {
			printBanner(m, err)
			return askToContinue()
		}

		if m.State() == session.Results {
			break
		}

		// Failed: the file is kept for a retry
		printBanner(m, nil)
		if sub != nil && sub.Err() != nil {
			fmt.Println(infoStyle.Render(sub.Err().Error()))
		}
		if !askRetry() {
			return askToContinue()
		}
		retry = true
	}

	// Step 4: Results
	s := m.Snapshot()
	fmt.Println(renderResults(s))
	if path := a.saveAnnotated(os.Stdout); path != "" {
		fmt.Println(infoStyle.Render("Annotated image saved to " + path))
	}

	return resultsMenu(m)
}

// confirmAnalyze shows the preview and asks for analysis. It returns false
// after discarding or exiting; the machine is Idle only after a discard.
func confirmAnalyze(m *session.Machine) bool {
	s := m.Snapshot()
	fmt.Println(boxStyle.Render("🖼  " + upload.Describe(*s.File)))

	var choice string
	confirmSelect := huh.NewSelect[string]().
		Title("Analyze this image?").
		Options(
			huh.NewOption("Analyze", "analyze"),
			huh.NewOption("Pick a different image", "discard"),
			huh.NewOption("Exit", "exit"),
		).
		Value(&choice)

	err := huh.NewForm(huh.NewGroup(confirmSelect)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()

	if err != nil || choice == "exit" {
		return false
	}
	if choice == "discard" {
		_ = m.Discard()
		return false
	}
	return true
}

func renderResults(s session.Snapshot) string {
	if !s.HasFeedback() {
		return boxStyle.Render("📋 Analysis Results\n\n" + successStyle.Render("✅ "+s.Lines[0]))
	}

	var b strings.Builder
	b.WriteString("📋 Analysis Results\n")
	for i, line := range s.Lines {
		fmt.Fprintf(&b, "\n%d. %s", i+1, line)
	}
	return boxStyle.Render(b.String())
}

// resultsMenu offers narration until the user moves on
func resultsMenu(m *session.Machine) bool {
	for {
		s := m.Snapshot()

		var options []huh.Option[string]
		if s.CanNarrate && s.HasFeedback() {
			if s.Narration == narration.Speaking {
				options = append(options, huh.NewOption("🔇 Stop reading", "speak"))
			} else {
				options = append(options, huh.NewOption("🔊 Read aloud", "speak"))
			}
		}
		options = append(options,
			huh.NewOption("Analyze another image", "another"),
			huh.NewOption("Exit", "exit"),
		)

		var choice string
		selectNext := huh.NewSelect[string]().
			Title("What next?").
			Options(options...).
			Value(&choice)

		err := huh.NewForm(huh.NewGroup(selectNext)).
			WithTheme(huh.ThemeCatppuccin()).
			Run()

		if err != nil {
			return false
		}

		switch choice {
		case "speak":
			if err := m.ToggleNarration(); err != nil {
				fmt.Println(errorStyle.Render("Narration error: " + err.Error()))
			}
		case "another":
			m.Reset()
			return true
		default:
			return false
		}
	}
}

func printBanner(m *session.Machine, err error) {
	if b := m.Banner(); b != nil {
		fmt.Println(errorStyle.Render("⚠ " + b.Message))
		return
	}
	if err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
	}
}

func askRetry() bool {
	var retry bool
	confirm := huh.NewConfirm().
		Title("Try again?").
		Affirmative("Retry").
		Negative("No").
		Value(&retry)

	err := huh.NewForm(huh.NewGroup(confirm)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()

	return err == nil && retry
}

func askToContinue() bool {
	var choice string
	selectNext := huh.NewSelect[string]().
		Title("What next?").
		Options(
			huh.NewOption("Choose another image", "another"),
			huh.NewOption("Exit", "exit"),
		).
		Value(&choice)

	err := huh.NewForm(huh.NewGroup(selectNext)).
		WithTheme(huh.ThemeCatppuccin()).
		Run()

	if err != nil {
		return false
	}

	return choice == "another"
}

func jpegNote(v *upload.Validator) string {
	for _, t := range v.Accepted() {
		if t == upload.TypeJPEG {
			return " or JPEG"
		}
	}
	return ""
}
