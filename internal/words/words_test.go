package words

import "testing"

func TestCount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t", 0},
		{"plain text", "hello world", 2},
		{"markup stripped", "<p>hello world</p>", 2},
		{"nested markup", "<div><h1>Title</h1><p>Some body text.</p></div>", 4},
		{"punctuation splits", "don't stop", 3},
		{"numbers count", "chapter 12 page 3", 4},
		{"footnote markers", `<p>text<sup>1</sup> more</p>`, 3},
		{"tags glue is a boundary", "<p>one</p><p>two</p>", 2},
		// Each diacritic-bearing token is one word: marks extend the run.
		{"arabic with diacritics", "بِسْمِ اللَّهِ الرَّحْمَٰنِ الرَّحِيمِ", 4},
		{"arabic in markup", "<p>كِتَابٌ</p>", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.input); got != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestCountAll(t *testing.T) {
	if got := CountAll("<p>hello world</p>", "<p>a footnote</p>"); got != 4 {
		t.Errorf("CountAll = %d, want 4", got)
	}
	if got := CountAll(); got != 0 {
		t.Errorf("CountAll() = %d, want 0", got)
	}
}
