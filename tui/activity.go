package tui

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"inkcheck/analysis"
	"inkcheck/upload"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

// EntryType classifies an activity entry
type EntryType string

const (
	EntryRequest  EntryType = "request"
	EntryResponse EntryType = "response"
	EntryStatus   EntryType = "status"
	EntryError    EntryType = "error"
	EntryComplete EntryType = "complete"
)

// Entry is one line of the activity feed
type Entry struct {
	Timestamp time.Time
	Type      EntryType
	Title     string

	// Detail is shown muted after the title
	Detail string
}

// ActivityFeed is a scrolling log of what the session did, including each
// request sent to the analysis service
type ActivityFeed struct {
	Entries  []Entry
	Viewport viewport.Model

	Width  int
	Height int

	// MaxEntries limits the number of entries kept (0 = unlimited)
	MaxEntries int
}

// NewActivityFeed creates a feed with the given dimensions
func NewActivityFeed(width, height int) *ActivityFeed {
	vp := viewport.New(width, height)
	vp.Style = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)

	f := &ActivityFeed{
		Viewport:   vp,
		Width:      width,
		Height:     height,
		MaxEntries: 100,
	}
	f.Viewport.SetContent(f.Render())
	return f
}

// Add appends an entry and scrolls to it
func (f *ActivityFeed) Add(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	f.Entries = append(f.Entries, e)
	if f.MaxEntries > 0 && len(f.Entries) > f.MaxEntries {
		f.Entries = f.Entries[len(f.Entries)-f.MaxEntries:]
	}

	f.Viewport.SetContent(f.Render())
	f.Viewport.GotoBottom()
}

// AddStatus appends a status entry
func (f *ActivityFeed) AddStatus(title string, detail string) {
	f.Add(Entry{Type: EntryStatus, Title: title, Detail: detail})
}

// AddError appends an error entry
func (f *ActivityFeed) AddError(title string, err error) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	f.Add(Entry{Type: EntryError, Title: title, Detail: detail})
}

// AddRequest records an outgoing submission
func (f *ActivityFeed) AddRequest(endpoint string, c upload.Candidate) {
	f.Add(Entry{
		Type:   EntryRequest,
		Title:  "POST " + endpoint,
		Detail: fmt.Sprintf("%s, %s", c.Name, upload.FormatSize(c.Size)),
	})
}

// AddExchange records a finished HTTP exchange
func (f *ActivityFeed) AddExchange(ex analysis.Exchange) {
	var parts []string
	if ex.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", ex.StatusCode, http.StatusText(ex.StatusCode)))
	}
	if ex.Latency > 0 {
		parts = append(parts, fmt.Sprintf("%.1fs", ex.Latency.Seconds()))
	}
	if ex.BytesSent > 0 {
		parts = append(parts, upload.FormatSize(ex.BytesSent)+" sent")
	}

	e := Entry{
		Timestamp: time.Now(),
		Type:      EntryResponse,
		Title:     "RESPONSE from " + ex.URL,
		Detail:    strings.Join(parts, ", "),
	}
	if ex.Err != nil {
		e.Type = EntryError
		e.Detail = strings.TrimPrefix(e.Detail+" - "+truncateString(ex.Err.Error(), 80), " - ")
	}
	f.Add(e)
}

// SetSize updates the feed dimensions
func (f *ActivityFeed) SetSize(width, height int) {
	f.Width = width
	f.Height = height
	f.Viewport.Width = width
	f.Viewport.Height = height
	f.Viewport.SetContent(f.Render())
}

// Clear removes all entries
func (f *ActivityFeed) Clear() {
	f.Entries = nil
	f.Viewport.SetContent(f.Render())
}

// View returns the viewport view
func (f *ActivityFeed) View() string {
	return f.Viewport.View()
}

// Render renders all entries to a string
func (f *ActivityFeed) Render() string {
	if len(f.Entries) == 0 {
		return MutedStyle.Render("  No activity yet")
	}

	lines := make([]string, 0, len(f.Entries))
	for _, e := range f.Entries {
		lines = append(lines, renderEntry(e))
	}
	return strings.Join(lines, "\n")
}

func renderEntry(e Entry) string {
	icon, style := entryStyle(e.Type)
	timestamp := lipgloss.NewStyle().Foreground(ColorMuted).Render(e.Timestamp.Format("15:04:05"))

	var suffix string
	if e.Detail != "" {
		if e.Type == EntryError {
			suffix = " " + ErrorStyle.UnsetBold().Render("("+e.Detail+")")
		} else {
			suffix = " " + MutedStyle.Render("("+e.Detail+")")
		}
	}

	return fmt.Sprintf("%s %s %s%s", timestamp, style.Render(icon), style.Render(e.Title), suffix)
}

func entryStyle(t EntryType) (string, lipgloss.Style) {
	switch t {
	case EntryRequest:
		return "[>]", lipgloss.NewStyle().Foreground(ColorSecondary)
	case EntryResponse:
		return "[<]", lipgloss.NewStyle().Foreground(ColorSuccess)
	case EntryError:
		return "[!]", ErrorStyle
	case EntryComplete:
		return "[x]", lipgloss.NewStyle().Foreground(ColorSuccess)
	default:
		return "[-]", lipgloss.NewStyle().Foreground(ColorPrimary)
	}
}

func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")

	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
