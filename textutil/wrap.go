// Package textutil provides text formatting helpers for subtitle display
// lines.
package textutil

import (
	"strings"
	"unicode/utf8"
)

// Wrap greedily wraps text into display lines of at most width characters,
// joined by newlines. Words are never split: a word is appended to the
// current line when it fits together with a separating space, otherwise it
// starts a new line. A single word longer than the width occupies a line of
// its own, unshortened. Width zero or negative disables wrapping and returns
// the text unchanged.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return strings.Join(WrapLines(text, width), "\n")
}

// WrapLines wraps like Wrap but returns the individual lines. Runs of
// whitespace, including newlines already present in the text, collapse to
// single spaces. Widths are measured in characters, not bytes.
func WrapLines(text string, width int) []string {
	words := strings.Fields(text)

	var lines []string
	var current string

	for _, word := range words {
		switch {
		case current == "":
			current = word
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
