// Package summary turns a video into a structured summary: it asks a Gemini
// model for a tagged response and parses the tagged sections.
package summary

import (
	"regexp"
	"strings"
)

// Summary is the structured content extracted from a tagged model response.
type Summary struct {
	Title     string   `json:"title"`
	KeyPoints string   `json:"key_points"`
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
}

var (
	titlePattern     = regexp.MustCompile(`(?s)<TITLE>(.*?)</TITLE>`)
	keyPointsPattern = regexp.MustCompile(`(?s)<KEYPOINTS>(.*?)</KEYPOINTS>`)
	summaryPattern   = regexp.MustCompile(`(?s)<SUMMARY>(.*?)</SUMMARY>`)
	tagsPattern      = regexp.MustCompile(`(?s)<TAGS>(.*?)</TAGS>`)
)

// Parse extracts the TITLE, KEYPOINTS, SUMMARY and TAGS sections from text.
// The first occurrence of each section wins. Missing sections leave the
// zero value, with Tags always a non-nil slice.
func Parse(text string) Summary {
	s := Summary{
		Title:     section(titlePattern, text),
		KeyPoints: section(keyPointsPattern, text),
		Summary:   section(summaryPattern, text),
		Tags:      []string{},
	}

	for _, tag := range strings.Split(section(tagsPattern, text), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			s.Tags = append(s.Tags, tag)
		}
	}
	return s
}

// IsEmpty reports whether no section was found.
func (s Summary) IsEmpty() bool {
	return s.Title == "" && s.KeyPoints == "" && s.Summary == "" && len(s.Tags) == 0
}

func section(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
