// Package render provides a console display collaborator: a pure
// formatter from subject state to text lines, with no protocol
// knowledge. Library users can supply any presence.Renderer instead.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/petrellis/vigil/pkg/vigil/presence"
)

// Console renders each state notification as one line on a writer.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console renderer writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Render implements presence.Renderer.
func (c *Console) Render(subjectID string, state *presence.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case state == nil:
		fmt.Fprintf(c.w, "%s\tremoved\n", subjectID)
	case state.Pending:
		fmt.Fprintf(c.w, "%s\tloading...\n", subjectID)
	default:
		fmt.Fprintf(c.w, "%s\t%s\n", subjectID, formatRecord(state))
	}
}

func formatRecord(state *presence.State) string {
	rec := state.Record

	var b strings.Builder
	if rec.User.Username != "" {
		b.WriteString(rec.User.Username)
	} else {
		b.WriteString("(unknown)")
	}
	b.WriteString(" [")
	b.WriteString(rec.Status)
	b.WriteString("]")

	if platforms := formatPlatforms(rec.ClientStatus); platforms != "" {
		b.WriteString(" on ")
		b.WriteString(platforms)
	}

	for _, act := range rec.Activities {
		b.WriteString(" | ")
		b.WriteString(act.Name)
		if act.Details != "" {
			b.WriteString(": ")
			b.WriteString(act.Details)
		}
	}

	if state.Music != nil {
		b.WriteString(" | listening: ")
		b.WriteString(formatMusic(state.Music))
	}

	return b.String()
}

func formatPlatforms(cs presence.ClientStatus) string {
	var platforms []string
	if cs.Desktop {
		platforms = append(platforms, "desktop")
	}
	if cs.Mobile {
		platforms = append(platforms, "mobile")
	}
	if cs.Web {
		platforms = append(platforms, "web")
	}
	return strings.Join(platforms, "/")
}

func formatMusic(music *presence.Activity) string {
	parts := make([]string, 0, 3)
	if music.Details != "" {
		parts = append(parts, music.Details)
	}
	if music.State != "" {
		parts = append(parts, music.State)
	}
	if music.Album != "" {
		parts = append(parts, music.Album)
	}
	if len(parts) == 0 {
		return music.Name
	}
	return strings.Join(parts, " - ")
}
