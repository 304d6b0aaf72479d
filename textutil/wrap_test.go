package textutil

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Wrap / WrapLines
// ---------------------------------------------------------------------------

func TestWrapLines(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{
			name:  "fits on one line",
			text:  "hello world",
			width: 20,
			want:  []string{"hello world"},
		},
		{
			name:  "breaks at width",
			text:  "the quick brown fox jumps",
			width: 10,
			want:  []string{"the quick", "brown fox", "jumps"},
		},
		{
			name:  "exact fit counts the joining space",
			text:  "abc def",
			width: 7,
			want:  []string{"abc def"},
		},
		{
			name:  "one short of fitting",
			text:  "abc def",
			width: 6,
			want:  []string{"abc", "def"},
		},
		{
			name:  "overlong word gets its own line",
			text:  "a pneumonoultramicroscopic b",
			width: 5,
			want:  []string{"a", "pneumonoultramicroscopic", "b"},
		},
		{
			name:  "overlong first word",
			text:  "pneumonoultramicroscopic ash",
			width: 5,
			want:  []string{"pneumonoultramicroscopic", "ash"},
		},
		{
			name:  "collapses internal newlines",
			text:  "one\ntwo  three",
			width: 20,
			want:  []string{"one two three"},
		},
		{
			name:  "empty input",
			text:  "",
			width: 10,
			want:  nil,
		},
		{
			name:  "whitespace only",
			text:  "  \n\t ",
			width: 10,
			want:  nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := WrapLines(tc.text, tc.width)
			if len(got) != len(tc.want) {
				t.Fatalf("WrapLines() = %#v, want %#v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestWrapZeroWidthIsIdentity(t *testing.T) {
	texts := []string{
		"a very long line that would otherwise certainly be wrapped somewhere",
		"multi\nline\ntext",
		"",
	}
	for _, text := range texts {
		if got := Wrap(text, 0); got != text {
			t.Errorf("Wrap(%q, 0) = %q, want unchanged", text, got)
		}
		if got := Wrap(text, -3); got != text {
			t.Errorf("Wrap(%q, -3) = %q, want unchanged", text, got)
		}
	}
}

func TestWrapPreservesWordSequence(t *testing.T) {
	texts := []string{
		"the quick brown fox jumps over the lazy dog",
		"one",
		"supercalifragilisticexpialidocious and friends",
		"päivää herra Korhonen mitä kuuluu näin aamusta",
	}
	for _, text := range texts {
		for _, width := range []int{1, 5, 10, 42, 1000} {
			joined := strings.Join(WrapLines(text, width), " ")
			if want := strings.Join(strings.Fields(text), " "); joined != want {
				t.Errorf("width %d: joined lines = %q, want %q", width, joined, want)
			}
		}
	}
}

func TestWrapNeverExceedsWidthExceptSingleWords(t *testing.T) {
	text := "alpha beta gamma delta epsilon zeta eta theta iota kappa"
	for _, width := range []int{4, 7, 12, 25} {
		for _, line := range WrapLines(text, width) {
			if len(line) > width && strings.Contains(line, " ") {
				t.Errorf("width %d: multi-word line %q exceeds width", width, line)
			}
		}
	}
}

func TestWrapCountsCharactersNotBytes(t *testing.T) {
	// Six two-byte runes plus a second word: fits in 10 characters even
	// though the byte length would not allow it.
	got := WrapLines("ääääää abc", 10)
	want := []string{"ääääää abc"}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("WrapLines() = %#v, want %#v", got, want)
	}
}
