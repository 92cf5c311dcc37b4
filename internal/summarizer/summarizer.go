// Package summarizer turns accumulated call transcripts into short
// handoff summaries for the incoming agent. Summarize is total: when
// every remote provider fails it falls back to a deterministic local
// summary, so a transfer never aborts for lack of one.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/llm"
	"github.com/shiftdesk/warm-transfer/internal/retry"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
	"github.com/shiftdesk/warm-transfer/pkg/metrics"
)

const (
	systemPrompt = "You create short, crisp handoff summaries."

	promptTemplate = "You are an assistant creating a concise handoff summary between " +
		"two human agents. Summarize the following caller context in 2-3 short " +
		"sentences, focusing on intent, status, and next steps.\n\nContext:\n%s\n\nSummary:"

	// emptySummary is the fixed answer for a blank transcript.
	emptySummary = "No transcript was recorded for this call yet."

	fallbackTemplate = "LLM unavailable — Notes: %s — please verify details."

	// fallbackNoteLimit bounds the transcript excerpt quoted by the
	// local fallback.
	fallbackNoteLimit = 160

	defaultTimeout     = 20 * time.Second
	defaultMaxAttempts = 3
	defaultMaxInput    = 8000
)

// Provider pairs a completion client with its request parameters.
type Provider struct {
	Client      llm.Client
	Model       string
	MaxTokens   int
	Temperature float64
}

// Config holds the parameters for building the service.
type Config struct {
	// Providers are tried in priority order on every attempt round.
	Providers []Provider

	// Timeout bounds each individual provider call.
	Timeout time.Duration

	// MaxAttempts is the number of rounds through the provider chain.
	MaxAttempts int

	// MaxInput truncates the transcript before remote calls.
	MaxInput int

	Clock  clock.Clock
	Logger *logger.Logger
}

// Service generates handoff summaries.
type Service struct {
	providers   []Provider
	timeout     time.Duration
	maxAttempts int
	maxInput    int
	clk         clock.Clock
	logger      *logger.Logger
}

// New creates a summarizer service. Zero config fields get defaults;
// a service with no providers always answers from the local fallback.
func New(cfg Config) *Service {
	s := &Service{
		providers:   cfg.Providers,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		maxInput:    cfg.MaxInput,
		clk:         cfg.Clock,
		logger:      cfg.Logger,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.maxInput <= 0 {
		s.maxInput = defaultMaxInput
	}
	if s.clk == nil {
		s.clk = clock.Real()
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	return s
}

// ProviderNames lists the configured providers in priority order.
func (s *Service) ProviderNames() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Client.Name()
	}
	return names
}

// Summarize produces a handoff summary for the transcript. It never
// fails: blank input yields a fixed placeholder, and exhausted remote
// providers yield the deterministic local fallback.
func (s *Service) Summarize(ctx context.Context, transcript string) string {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return emptySummary
	}

	truncated := trimmed
	if runes := []rune(truncated); len(runes) > s.maxInput {
		truncated = string(runes[:s.maxInput])
	}

	if len(s.providers) == 0 {
		metrics.RecordFallbackSummary()
		return s.fallback(trimmed)
	}

	var summary string
	policy := retry.Policy{
		MaxAttempts:  s.maxAttempts,
		InitialDelay: time.Second,
		OnRetry: func(attempt int, err error) {
			s.logger.Warn("summarization round failed, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		},
	}
	err := retry.Do(ctx, s.clk, policy, func(ctx context.Context) error {
		text, err := s.tryProviders(ctx, truncated)
		if err != nil {
			return err
		}
		summary = text
		return nil
	})
	if err != nil {
		s.logger.Warn("all summarization providers failed, using local fallback",
			zap.Error(err),
		)
		metrics.RecordFallbackSummary()
		return s.fallback(trimmed)
	}
	return summary
}

// tryProviders walks the chain in priority order and returns the first
// non-blank completion. An empty completion counts as a failure.
func (s *Service) tryProviders(ctx context.Context, transcript string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, transcript)

	var lastErr error
	for _, p := range s.providers {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err := p.Client.Complete(attemptCtx, &llm.CompletionRequest{
			Model: p.Model,
			Messages: []llm.ChatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: prompt},
			},
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
		})
		cancel()

		if err != nil {
			metrics.RecordSummarizerCall(p.Client.Name(), "error", s.timeout.Seconds())
			s.logger.Debug("summarization provider failed",
				zap.String("provider", p.Client.Name()),
				zap.Error(err),
			)
			lastErr = fmt.Errorf("%s: %w", p.Client.Name(), err)
			continue
		}

		text := strings.TrimSpace(resp.Content)
		if text == "" {
			metrics.RecordSummarizerCall(p.Client.Name(), "empty", float64(resp.LatencyMs)/1000)
			lastErr = fmt.Errorf("%s: empty completion", p.Client.Name())
			continue
		}

		metrics.RecordSummarizerCall(p.Client.Name(), "ok", float64(resp.LatencyMs)/1000)
		s.logger.Info("summary generated",
			zap.String("provider", p.Client.Name()),
			zap.String("model", resp.Model),
			zap.Int("tokens_in", resp.TokensIn),
			zap.Int("tokens_out", resp.TokensOut),
			zap.Int64("latency_ms", resp.LatencyMs),
		)
		return text, nil
	}
	return "", lastErr
}

// fallback derives a deterministic summary from the transcript's last
// non-blank line, whitespace-collapsed and length-bounded.
func (s *Service) fallback(transcript string) string {
	note := lastNonBlankLine(transcript)
	note = strings.Join(strings.Fields(note), " ")
	if runes := []rune(note); len(runes) > fallbackNoteLimit {
		note = string(runes[:fallbackNoteLimit])
	}
	return fmt.Sprintf(fallbackTemplate, note)
}

func lastNonBlankLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
