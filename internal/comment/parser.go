// Package comment pulls a "Title by Author" pair out of free-text forum comments.
//
// The heuristic only targets the common "reading: Title by Author" convention.
// False positives and misses are expected.
package comment

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/drallgood/bookfeed/internal/models"
)

// maxLineLength bounds how long a candidate line may be
const maxLineLength = 50

// noise is removed from a candidate line, in this order, before splitting
var noise = []string{"started", "finished", ":", "reading", `\`, "*"}

var emoji = regexp.MustCompile("[\U0001F600-\U0001F64F\U0001F300-\U0001F5FF\U0001F680-\U0001F6FF\U0001F1E0-\U0001F1FF]+")

// Parse scans body line by line and returns the (title, author) of the last
// line that looks like a reading statement. ok is false when no line matched
// or the match produced an empty title.
func Parse(body string) (book models.Book, ok bool) {
	for _, line := range strings.Split(body, "\n") {
		if !strings.Contains(line, "by") || utf8.RuneCountInString(line) >= maxLineLength {
			continue
		}
		title, author, matched := parseLine(line)
		if !matched {
			continue
		}
		book = models.Book{Title: title, Author: author, Source: models.SourceThread}
	}
	return book, book.Title != ""
}

func parseLine(line string) (title, author string, ok bool) {
	line = strings.TrimSpace(strings.ToLower(line))
	for _, token := range noise {
		line = strings.ReplaceAll(line, token, "")
	}
	before, after, found := strings.Cut(line, "by")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(before), strings.TrimSpace(StripEmoji(after)), true
}

// StripEmoji removes characters in the emoticon, pictograph, transport and
// flag blocks
func StripEmoji(s string) string {
	return emoji.ReplaceAllString(s, "")
}
