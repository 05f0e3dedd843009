package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/thoughtmap/pkg/concept"
)

var (
	// relationTag matches "[relation: label]" and the Japanese prompt form
	// "[関係: label]" with either an ASCII or a full-width colon.
	relationTag = regexp.MustCompile(`\[(?:relation|関係)\s*[:：]\s*([^\]]*)\]`)

	// orderedPrefix matches an ordered-list marker such as "1. " or "12) ".
	// The trailing whitespace keeps "1.5倍" and "3.14" intact.
	orderedPrefix = regexp.MustCompile(`^\d+[.)]\s+`)

	// followupLine matches a numbered follow-up question line.
	followupLine = regexp.MustCompile(`^\d+\.\s*`)
)

// markerChars are stripped from the start of a concept line.
const markerChars = "- \t*•"

// ParseConcepts turns an indented outline produced by the extraction model
// into flat [concept.Parsed] records.
//
// Blank lines are skipped. The level of a line is its count of leading
// whitespace characters divided by two (a tab counts as one character). List
// markers and an inline relation tag are removed from the text. Ids have the
// form "concept-<gen>-<index>" where index counts non-blank lines, so ids are
// unique as long as gen is unique per call.
//
// ParseConcepts never fails: malformed lines yield records with empty text and
// empty input yields an empty, non-nil slice.
func ParseConcepts(resp, gen string) []concept.Parsed {
	out := make([]concept.Parsed, 0)
	idx := 0
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		text, label := splitRelation(stripMarkers(line))
		out = append(out, concept.Parsed{
			ID:            "concept-" + gen + "-" + strconv.Itoa(idx),
			Text:          text,
			Level:         leadingWhitespace(line) / 2,
			RelationLabel: label,
		})
		idx++
	}
	return out
}

// ParseFollowups returns the numbered lines of resp ("1. question") with the
// numbering removed. Other lines are ignored.
func ParseFollowups(resp string) []string {
	out := make([]string, 0, 3)
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if !followupLine.MatchString(line) {
			continue
		}
		if q := strings.TrimSpace(followupLine.ReplaceAllString(line, "")); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func leadingWhitespace(line string) int {
	n := 0
	for _, r := range line {
		if r != ' ' && r != '\t' && r != '　' {
			break
		}
		n++
	}
	return n
}

// stripMarkers removes leading whitespace and bullets. An ordered-list
// marker is only removed from lines that carry no bullet.
func stripMarkers(line string) string {
	s := strings.TrimLeft(line, markerChars+"　")
	bulleted := strings.ContainsAny(line[:len(line)-len(s)], "-*•")
	if !bulleted {
		if loc := orderedPrefix.FindStringIndex(s); loc != nil {
			s = strings.TrimLeft(s[loc[1]:], markerChars)
		}
	}
	return strings.TrimSpace(s)
}

func splitRelation(s string) (text, label string) {
	m := relationTag.FindStringSubmatchIndex(s)
	if m == nil {
		return s, ""
	}
	label = strings.TrimSpace(s[m[2]:m[3]])
	text = strings.TrimSpace(s[:m[0]] + s[m[1]:])
	return text, label
}
