package inspect

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/animcache/internal/cache"
	"github.com/dustin/go-humanize"
)

var (
	labelFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	valueFg = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#89F0CB"}

	labelStyle = lipgloss.NewStyle().
			Foreground(labelFg).
			Width(12).
			Render

	valueStyle = lipgloss.NewStyle().
			Foreground(valueFg).
			Render

	missingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D74E6F", Dark: "#FE5F86"}).
			Render
)

// Render writes a human-readable summary. now anchors relative times.
func Render(w io.Writer, s Summary, now time.Time) error {
	var b strings.Builder

	row := func(label, value string) {
		b.WriteString(labelStyle(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	row("clips", valueStyle(humanize.Comma(int64(s.Count))))
	row("size", valueStyle(humanize.Bytes(uint64(s.TotalBytes)))) //nolint:gosec
	if s.Count > 0 {
		row("newest", valueStyle(humanize.RelTime(s.Newest, now, "ago", "from now")))
		row("oldest", valueStyle(humanize.RelTime(s.Oldest, now, "ago", "from now")))
	}
	if s.KnownKey != "" {
		state := missingStyle("not cached")
		if s.HasKnownKey {
			state = valueStyle("cached")
		}
		row("key", s.KnownKey+" "+state)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("unable to write summary: %w", err)
	}
	return nil
}

// RenderList writes one line per record: age, size and key.
func RenderList(w io.Writer, infos []cache.RecordInfo, now time.Time) error {
	for _, info := range infos {
		_, err := fmt.Fprintf(w, "%s  %s  %s\n",
			labelStyle(humanize.RelTime(info.WrittenAt, now, "ago", "from now")),
			valueStyle(fmt.Sprintf("%8s", humanize.Bytes(uint64(info.Size)))), //nolint:gosec
			info.Key,
		)
		if err != nil {
			return fmt.Errorf("unable to write listing: %w", err)
		}
	}
	return nil
}
