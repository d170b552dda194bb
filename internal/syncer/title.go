package syncer

import (
	"regexp"
	"strings"
)

// Pattern 1: the literal word "Project" plus one following word, anywhere in
// the title. Pattern 2: a leading capitalized one-or-two-word phrase right
// before a separator.
var (
	projectPattern   = regexp.MustCompile(`(?i)(Project\s+\w+)`)
	separatorPattern = regexp.MustCompile(`^([A-Z][a-zA-Z0-9]+(?:\s+[A-Z][a-zA-Z0-9]+)?)\s*[-:/<>]`)
)

// baseStopWords are generic meeting-title prefixes that are never project
// names. Deployment-specific names (the firm's own) are appended from config.
var baseStopWords = []string{
	"call", "meeting", "discussion", "touchbase", "catch", "internal",
	"weekly", "daily", "sync", "update", "review",
}

// TitleParser extracts candidate deal names from call titles.
type TitleParser struct {
	stopWords map[string]struct{}
}

func NewTitleParser(extraStopWords []string) *TitleParser {
	stopWords := make(map[string]struct{}, len(baseStopWords)+len(extraStopWords))
	for _, w := range baseStopWords {
		stopWords[w] = struct{}{}
	}
	for _, w := range extraStopWords {
		stopWords[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &TitleParser{stopWords: stopWords}
}

// ExtractProjectName returns the candidate deal name from a call title, or ""
// when the title carries no usable name. "Project X" anywhere wins; otherwise
// a leading code name before a separator is used unless stoplisted.
func (p *TitleParser) ExtractProjectName(title string) string {
	if title == "" {
		return ""
	}

	if match := projectPattern.FindStringSubmatch(title); match != nil {
		return match[1]
	}

	if match := separatorPattern.FindStringSubmatch(title); match != nil {
		candidate := strings.TrimSpace(match[1])
		if _, stoplisted := p.stopWords[strings.ToLower(candidate)]; !stoplisted {
			return candidate
		}
	}

	return ""
}
