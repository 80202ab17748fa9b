package summarizer

import (
	"strings"
	"testing"
)

func TestSummarize_PicksFrequentSentencesInOrder(t *testing.T) {
	text := "Latency matters for retrieval. The weather was nice. Retrieval latency was measured twice. Lunch was served."
	got, err := NewFrequencySummarizer().Summarize(text, 2)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := "Latency matters for retrieval. Retrieval latency was measured twice."
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSummarize_NoSentenceTerminator(t *testing.T) {
	got, _ := NewFrequencySummarizer().Summarize("  heading only\n  text ", 3)
	if got != "heading only text" {
		t.Fatalf("got %q", got)
	}
}

func TestSummarize_DefaultLimit(t *testing.T) {
	text := strings.Repeat("Alpha beta gamma. ", 10)
	got, _ := NewFrequencySummarizer().Summarize(text, 0)
	if n := strings.Count(got, "."); n != DefaultMaxSentences {
		t.Fatalf("expected %d sentences, got %d in %q", DefaultMaxSentences, n, got)
	}
}
