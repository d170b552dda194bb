package syncer

import (
	"strconv"
	"strings"

	"fireflies-dealcloud-sync/internal/fireflies"
)

// contentMarkers label the summary sections in interaction notes. Their
// presence distinguishes fully-populated notes from the bare header written
// before Fireflies finished processing. Detection is textual; the exact
// strings matter.
var contentMarkers = []string{
	"SUMMARY:", "DETAILED NOTES:", "ACTION ITEMS:", "KEY TOPICS:", "NOTES:", "OUTLINE:",
}

// HasIncompleteNotes reports whether an existing interaction's notes predate
// the transcript's summary: empty, whitespace-only, or lacking every content
// marker.
func HasIncompleteNotes(notes string) bool {
	if strings.TrimSpace(notes) == "" {
		return true
	}
	for _, marker := range contentMarkers {
		if strings.Contains(notes, marker) {
			return false
		}
	}
	return true
}

// FormatContent renders the structured summary as labeled sections joined by
// blank lines. Absent sections are omitted entirely. The outline is labeled
// OUTLINE when detailed notes are present and NOTES when they are the only
// long-form content.
func FormatContent(summary *fireflies.Summary) string {
	if summary == nil {
		return ""
	}

	var sections []string

	if summary.Overview != "" {
		sections = append(sections, "SUMMARY:\n"+summary.Overview)
	}
	if len(summary.Keywords) > 0 {
		sections = append(sections, "KEY TOPICS:\n"+strings.Join(summary.Keywords, ", "))
	}
	if summary.ShorthandBullet != "" {
		sections = append(sections, "DETAILED NOTES:\n"+summary.ShorthandBullet)
	}
	if summary.Outline != "" {
		if summary.ShorthandBullet != "" {
			sections = append(sections, "OUTLINE:\n"+summary.Outline)
		} else {
			sections = append(sections, "NOTES:\n"+summary.Outline)
		}
	}
	if len(summary.ActionItems) > 0 {
		items := make([]string, len(summary.ActionItems))
		for i, item := range summary.ActionItems {
			items[i] = "  • " + item
		}
		sections = append(sections, "ACTION ITEMS:\n"+strings.Join(items, "\n"))
	}

	return strings.Join(sections, "\n\n")
}

// BuildNotes renders the full interaction notes: a fixed header with the
// recording metadata and participant list, then the formatted summary when
// one exists.
func BuildNotes(t *fireflies.Transcript) string {
	var b strings.Builder
	b.WriteString("Fireflies Call Recording\n\n")
	b.WriteString("Date: " + formatDate(t.Date) + "\n")
	b.WriteString("Duration: " + strconv.FormatFloat(t.Duration, 'f', -1, 64) + " seconds\n\n")
	b.WriteString("Participants:\n" + strings.Join(t.Participants, "\n"))

	if content := FormatContent(t.Summary); content != "" {
		b.WriteString("\n\n" + content)
	}

	return b.String()
}

func formatDate(epochMillis float64) string {
	if epochMillis == 0 {
		return "Unknown"
	}
	return strconv.FormatInt(int64(epochMillis), 10)
}
