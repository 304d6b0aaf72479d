package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kpasargad/srtrans/config"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		width   int
		want    string
	}{
		{
			name:    "clamps below zero",
			percent: -10,
			width:   4,
			want:    colorRed + "░░░░" + colorReset + "   0%",
		},
		{
			name:    "mid range uses yellow",
			percent: 50,
			width:   4,
			want:    colorYellow + "██░░" + colorReset + "  50%",
		},
		{
			name:    "clamps above hundred",
			percent: 120,
			width:   4,
			want:    colorGreen + "████" + colorReset + " 100%",
		},
	}

	for _, tc := range tests {
		if got := progressBar(tc.percent, tc.width); got != tc.want {
			t.Fatalf("%s: progressBar() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFlagFromRegion(t *testing.T) {
	if got := flagFromRegion("us"); got != "🇺🇸" {
		t.Fatalf("flagFromRegion(us) = %q, want %q", got, "🇺🇸")
	}
	if got := flagFromRegion("USA"); got != "" {
		t.Fatalf("flagFromRegion(USA) = %q, want empty", got)
	}
	if got := flagFromRegion("1A"); got != "" {
		t.Fatalf("flagFromRegion(1A) = %q, want empty", got)
	}
}

func TestLangHelpers(t *testing.T) {
	if got := langFlag("pt-BR"); got != "🇧🇷" {
		t.Fatalf("langFlag(pt-BR) = %q, want %q", got, "🇧🇷")
	}
	if got := langFlag("invalid"); got != "" {
		t.Fatalf("langFlag(invalid) = %q, want empty", got)
	}

	cell := langCell("pt-BR")
	if !strings.Contains(cell, "🇧🇷") || !strings.Contains(cell, "pt-BR") {
		t.Fatalf("langCell() = %q, want flag and language code", cell)
	}
	if got := langCell("es"); got != "es" {
		t.Fatalf("langCell(es) = %q, want %q", got, "es")
	}
}

func TestIntersectLanguages(t *testing.T) {
	available := []string{"en", "fr", "de", "es"}
	filter := []string{" fr ", "es", "it"}
	want := []string{"fr", "es"}

	if got := intersectLanguages(available, filter); !reflect.DeepEqual(got, want) {
		t.Fatalf("intersectLanguages() = %#v, want %#v", got, want)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(filePath, []byte("ok"), 0644); err != nil {
		t.Fatalf("os.WriteFile() error: %v", err)
	}

	if !fileExists(filePath) {
		t.Fatalf("fileExists(file) = false, want true")
	}
	if fileExists(dir) {
		t.Fatalf("fileExists(directory) = true, want false")
	}
	if fileExists(filepath.Join(dir, "missing.txt")) {
		t.Fatalf("fileExists(missing) = true, want false")
	}
}

func TestConfirmOverwrite(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "y accepts", input: "y\n", want: true},
		{name: "yes accepts any case", input: "YES\n", want: true},
		{name: "n declines", input: "n\n", want: false},
		{name: "reprompts until answered", input: "maybe\n\ny\n", want: true},
		{name: "eof declines", input: "", want: false},
		{name: "garbage then eof declines", input: "ok\nsure\n", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := confirmOverwrite(strings.NewReader(tc.input), "out.srt"); got != tc.want {
				t.Fatalf("confirmOverwrite(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	base := func() *config.Resolved {
		return &config.Resolved{
			Language:      "es",
			Context:       "ctx",
			BlockSize:     10,
			MaxLineLength: 42,
			Model:         "gpt-4o-mini",
			Temperature:   0.3,
			MaxTokens:     1024,
			BaseURL:       config.DefaultBaseURL,
			PreferEnv:     true,
		}
	}

	t.Run("zero flags keep stored settings", func(t *testing.T) {
		r := base()
		if err := applyOverrides(r, translateArgs{}); err != nil {
			t.Fatalf("applyOverrides() error: %v", err)
		}
		if *r != *base() {
			t.Fatalf("applyOverrides() changed settings: %+v", r)
		}
	})

	t.Run("set flags win", func(t *testing.T) {
		r := base()
		a := translateArgs{
			language:         "de",
			model:            "gpt-4o",
			blockSize:        5,
			maxLineLength:    0,
			maxLineLengthSet: true,
			baseURL:          "http://localhost:8080/v1",
		}
		if err := applyOverrides(r, a); err != nil {
			t.Fatalf("applyOverrides() error: %v", err)
		}
		if r.Language != "de" || r.Model != "gpt-4o" || r.BlockSize != 5 ||
			r.MaxLineLength != 0 || r.BaseURL != "http://localhost:8080/v1" {
			t.Fatalf("applyOverrides() = %+v", r)
		}
	})

	t.Run("zero line length needs the flag set", func(t *testing.T) {
		r := base()
		if err := applyOverrides(r, translateArgs{maxLineLength: 0}); err != nil {
			t.Fatalf("applyOverrides() error: %v", err)
		}
		if r.MaxLineLength != 42 {
			t.Fatalf("MaxLineLength = %d, want 42", r.MaxLineLength)
		}
	})

	t.Run("rejects bad values", func(t *testing.T) {
		if err := applyOverrides(base(), translateArgs{blockSize: -1}); err == nil {
			t.Fatalf("applyOverrides(block-size -1) expected error")
		}
		if err := applyOverrides(base(), translateArgs{maxLineLength: -5, maxLineLengthSet: true}); err == nil {
			t.Fatalf("applyOverrides(max-line-length -5) expected error")
		}
	})
}

func TestRenderTable(t *testing.T) {
	var buf strings.Builder
	renderTable(&buf, table.Row{"Key", "Value"}, []table.Row{{"language", "es"}})
	out := buf.String()

	for _, want := range []string{"KEY", "VALUE", "language", "es"} {
		if !strings.Contains(out, want) {
			t.Fatalf("renderTable() output missing %q:\n%s", want, out)
		}
	}
}
