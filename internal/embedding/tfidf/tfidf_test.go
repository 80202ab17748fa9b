package tfidf

import (
	"context"
	"math"
	"testing"
)

func TestEmbed_RequiresPrepare(t *testing.T) {
	e := NewEmbedder()
	if _, err := e.Embed(context.Background(), "anything"); err == nil {
		t.Fatalf("expected error before Prepare")
	}
}

func TestEmbed_NormalisedAndDeterministic(t *testing.T) {
	e := NewEmbedder()
	if err := e.Prepare([]string{"Methods we measured latency", "Introduction hello world"}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	v1, err := e.Embed(context.Background(), "measured latency")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, _ := e.Embed(context.Background(), "measured latency")
	if len(v1) != e.Dimension() || len(v1) == 0 {
		t.Fatalf("unexpected dimension %d", len(v1))
	}
	var norm float64
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embedding not deterministic at %d", i)
		}
		norm += float64(v1[i]) * float64(v1[i])
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("expected unit vector, got squared norm %f", norm)
	}
}

func TestEmbed_UnknownTermsGiveZeroVector(t *testing.T) {
	e := NewEmbedder()
	_ = e.Prepare([]string{"alpha beta"})
	v, err := e.Embed(context.Background(), "gamma the of")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestPrepare_KeepsFirstVocabulary(t *testing.T) {
	e := NewEmbedder()
	_ = e.Prepare([]string{"alpha beta"})
	dim := e.Dimension()
	if err := e.Prepare([]string{"gamma delta epsilon zeta"}); err != nil {
		t.Fatalf("second Prepare: %v", err)
	}
	if e.Dimension() != dim {
		t.Fatalf("dimension changed from %d to %d", dim, e.Dimension())
	}
}

func TestPrepare_EmptyCorpus(t *testing.T) {
	if err := NewEmbedder().Prepare(nil); err == nil {
		t.Fatalf("expected error for empty corpus")
	}
	if err := NewEmbedder().Prepare([]string{"the of and"}); err == nil {
		t.Fatalf("expected error for stopword-only corpus")
	}
}
