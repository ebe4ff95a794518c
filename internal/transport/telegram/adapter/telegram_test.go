package adapter

import (
	"strings"
	"testing"
)

func TestSplitTelegramTextShort(t *testing.T) {
	got := splitTelegramText("olá", 10)
	if len(got) != 1 || got[0] != "olá" {
		t.Fatalf("short text split: %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = strings.Repeat("a", 8)
	}
	text := strings.Join(lines, "\n")

	chunks := splitTelegramText(text, 30)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 30 {
			t.Fatalf("chunk %d over limit: %d runes", i, len([]rune(c)))
		}
		if i < len(chunks)-1 && !strings.HasSuffix(c, "a") {
			t.Fatalf("chunk %d did not end at a line boundary: %q", i, c)
		}
	}
	if got := strings.Join(chunks, "\n"); strings.ReplaceAll(got, "\n", "") != strings.ReplaceAll(text, "\n", "") {
		t.Fatalf("content lost in split")
	}
}

func TestSplitTelegramTextNoNewlines(t *testing.T) {
	text := strings.Repeat("x", 95)
	chunks := splitTelegramText(text, 30)

	var total int
	for _, c := range chunks {
		n := len([]rune(c))
		if n > 30 {
			t.Fatalf("chunk over limit: %d runes", n)
		}
		total += n
	}
	if total != 95 {
		t.Fatalf("split lost content: %d runes total", total)
	}
}
