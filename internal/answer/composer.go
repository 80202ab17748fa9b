// Package answer turns a retrieval result into a generation prompt and asks the model.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pdfrag/internal/domain"
	"pdfrag/internal/retrieval"
	"pdfrag/internal/retry"
)

// Tier says how much of the document backs an answer.
type Tier int

const (
	// TierGrounded answers only from the top relevant chunks.
	TierGrounded Tier = iota + 1
	// TierPartial answers directly, flagged as a partial document match.
	TierPartial
	// TierNoMatch asks for a brief general answer.
	TierNoMatch
)

func (t Tier) String() string {
	switch t {
	case TierGrounded:
		return "grounded"
	case TierPartial:
		return "partial"
	case TierNoMatch:
		return "no_match"
	default:
		return "unknown"
	}
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Answer is the composed reply. Sources lists the chunks given to the model, which is
// only ever the case for TierGrounded.
type Answer struct {
	Text    string
	Tier    Tier
	Sources []domain.ScoredChunk
}

// Composer selects the tier and sends the prompt through the retry policy.
type Composer struct {
	gen     domain.Generator
	model   string
	policy  retrieval.Policy
	retry   retry.Policy
	timeout time.Duration
	logger  *slog.Logger
}

func NewComposer(gen domain.Generator, model string, policy retrieval.Policy, rp retry.Policy, timeout time.Duration, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.TopK <= 0 {
		policy.TopK = retrieval.DefaultTopK
	}
	return &Composer{gen: gen, model: model, policy: policy, retry: rp, timeout: timeout, logger: logger}
}

// Plan picks the tier for res and builds its prompt without calling the model.
func (c *Composer) Plan(question string, res retrieval.Result) (Tier, string, []domain.ScoredChunk) {
	if len(res.Relevant) > 0 {
		top := res.Relevant[:min(c.policy.TopK, len(res.Relevant))]
		texts := make([]string, len(top))
		for i, sc := range top {
			texts[i] = sc.Chunk.Text
		}
		return TierGrounded, GroundedPrompt(strings.Join(texts, "\n\n"), question), top
	}
	if res.MaxSim > c.policy.PartialThreshold {
		return TierPartial, PartialPrompt(question), nil
	}
	return TierNoMatch, NoMatchPrompt(question), nil
}

// Compose answers question from res. The model's text is returned verbatim.
func (c *Composer) Compose(ctx context.Context, question string, res retrieval.Result) (Answer, error) {
	tier, prompt, sources := c.Plan(question, res)
	c.logger.Info("composing answer", "tier", tier.String(), "max_sim", res.MaxSim, "relevant", len(res.Relevant))

	p := c.retry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("generation provider overloaded, backing off",
			"attempt", attempt, "delay", delay, "err", err)
	}
	text, err := retry.Call(ctx, p, c.timeout, func(ctx context.Context) (string, error) {
		return c.gen.Generate(ctx, c.model, prompt)
	})
	if err != nil {
		return Answer{}, fmt.Errorf("generate %s answer: %w", tier, err)
	}
	return Answer{Text: text, Tier: tier, Sources: sources}, nil
}

func GroundedPrompt(excerpt, question string) string {
	return fmt.Sprintf("Answer based ONLY on this document context. If unsure, say so.\n\nContext: %s\n\nQuestion: %s\n\nAnswer:", excerpt, question)
}

func PartialPrompt(question string) string {
	return fmt.Sprintf("Answer: %s. Note: Partial document match.", question)
}

func NoMatchPrompt(question string) string {
	return fmt.Sprintf("Answer briefly: %s. (No relevant document content found)", question)
}
