package embed

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPrepareText(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
		maxLen  int
		want    string
	}{
		{
			name:    "collapses whitespace",
			title:   "Budget  vote",
			content: "The  council\n\n met\ttoday.",
			maxLen:  512,
			want:    "Budget vote The council met today.",
		},
		{
			name:    "drops symbols but keeps punctuation",
			title:   "Prices up 5%!",
			content: "Fuel costs €1.80 # again? Yes, again.",
			maxLen:  512,
			want:    "Prices up 5! Fuel costs 1.80 again? Yes, again.",
		},
		{
			name:    "strips html",
			title:   "Storm",
			content: "<div><p>Heavy rain</p><p>in Brno</p><script>var x = 1;</script></div>",
			maxLen:  512,
			want:    "Storm Heavy rain in Brno",
		},
		{
			name:    "strips markdown",
			title:   "Release",
			content: "# Version 2\n\nNow **faster** and [smaller](https://example.com).",
			maxLen:  512,
			want:    "Release Version 2 Now faster and smaller.",
		},
		{
			name:    "keeps non-latin letters",
			title:   "Zprávy",
			content: "Příliš žluťoučký kůň.",
			maxLen:  512,
			want:    "Zprávy Příliš žluťoučký kůň.",
		},
		{
			name:    "whitespace only",
			title:   "  ",
			content: "\n\t ",
			maxLen:  512,
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrepareText(tt.title, tt.content, tt.maxLen); got != tt.want {
				t.Errorf("PrepareText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrepareTextTruncatesAtSentence(t *testing.T) {
	content := "First sentence here. Second sentence is rather long and keeps going"
	got := PrepareText("T", content, 40)
	if got != "T First sentence here." {
		t.Errorf("PrepareText() = %q", got)
	}

	noStop := strings.Repeat("word ", 50)
	got = PrepareText("T", noStop, 30)
	if n := utf8.RuneCountInString(got); n > 30 {
		t.Errorf("hard cut length = %d, want <= 30", n)
	}
}
