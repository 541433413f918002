package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSplitKeepsShortParagraphsTogether(t *testing.T) {
	text := "First paragraph.\n\nSecond paragraph.\n\nThird."

	got := Chunker{MaxChars: 100}.Split(text)
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1: %q", len(got), got)
	}
	for _, para := range []string{"First paragraph.", "Second paragraph.", "Third."} {
		if !strings.Contains(got[0], para) {
			t.Errorf("chunk missing %q", para)
		}
	}
}

func TestSplitRespectsMaxChars(t *testing.T) {
	var parts []string
	for i := 0; i < 20; i++ {
		parts = append(parts, strings.Repeat("word ", 10))
	}
	text := strings.Join(parts, "\n\n")

	max := 120
	got := Chunker{MaxChars: max}.Split(text)
	if len(got) < 2 {
		t.Fatalf("got %d chunks, want several", len(got))
	}
	for i, c := range got {
		if len(c) > max {
			t.Errorf("chunk %d is %d chars, max %d", i, len(c), max)
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestSplitHardSplitsOversizedParagraph(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("alpha beta gamma ", 30))

	max := 80
	got := Chunker{MaxChars: max}.Split(para)
	if len(got) < 2 {
		t.Fatalf("oversized paragraph not split: %d chunks", len(got))
	}
	var rejoined []string
	for i, c := range got {
		if len(c) > max {
			t.Errorf("chunk %d is %d chars, max %d", i, len(c), max)
		}
		rejoined = append(rejoined, c)
	}
	// No words lost at the split points.
	if strings.Join(rejoined, " ") != para {
		t.Error("hard split dropped or altered text")
	}
}

func TestSplitWhitespaceOnly(t *testing.T) {
	if got := (Chunker{}).Split("  \n\n \t \n\n"); got != nil {
		t.Errorf("whitespace input produced chunks: %q", got)
	}
}

func TestSplitZeroMaxUsesDefault(t *testing.T) {
	text := strings.Repeat("a ", 300)
	got := Chunker{}.Split(text)
	for i, c := range got {
		if len(c) > defaultChunkSize {
			t.Errorf("chunk %d is %d chars, default max %d", i, len(c), defaultChunkSize)
		}
	}
}

func TestExtractTextPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("remember the milk"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	got, err := ExtractText(path)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "remember the milk" {
		t.Errorf("text = %q", got)
	}
}

func TestExtractTextMissingFile(t *testing.T) {
	if _, err := ExtractText(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("no error for missing file")
	}
}
