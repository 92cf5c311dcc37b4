package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/llm"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// stubClient scripts completions: each call consumes the next entry,
// and the final entry repeats once the script runs out.
type stubClient struct {
	name    string
	script  []stubResult
	calls   int
	prompts []string
}

type stubResult struct {
	content string
	err     error
}

func (c *stubClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	idx := c.calls
	if idx >= len(c.script) {
		idx = len(c.script) - 1
	}
	c.calls++
	c.prompts = append(c.prompts, req.Messages[len(req.Messages)-1].Content)

	r := c.script[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &llm.CompletionResponse{Content: r.content, Model: req.Model}, nil
}

func (c *stubClient) Name() string { return c.name }

func newService(t *testing.T, clk clock.Clock, clients ...*stubClient) *Service {
	t.Helper()
	providers := make([]Provider, len(clients))
	for i, c := range clients {
		providers[i] = Provider{Client: c, Model: "test-model", MaxTokens: 160}
	}
	return New(Config{Providers: providers, Clock: clk})
}

func TestEmptyTranscriptFixedPlaceholder(t *testing.T) {
	s := newService(t, clock.Fake(epoch))
	first := s.Summarize(context.Background(), "")
	second := s.Summarize(context.Background(), "   \n\t ")
	if first == "" {
		t.Fatal("empty transcript produced empty summary")
	}
	if first != second {
		t.Errorf("placeholder not fixed: %q vs %q", first, second)
	}
}

func TestPrimaryProviderSuccess(t *testing.T) {
	primary := &stubClient{name: "groq", script: []stubResult{{content: "Caller needs billing help."}}}
	secondary := &stubClient{name: "openai", script: []stubResult{{content: "unused"}}}
	s := newService(t, clock.Fake(epoch), primary, secondary)

	got := s.Summarize(context.Background(), "Caller: billing question")
	if got != "Caller needs billing help." {
		t.Errorf("summary = %q", got)
	}
	if primary.calls != 1 || secondary.calls != 0 {
		t.Errorf("calls = %d/%d, want 1/0", primary.calls, secondary.calls)
	}
}

func TestSecondaryProviderSameRound(t *testing.T) {
	primary := &stubClient{name: "groq", script: []stubResult{{err: errors.New("rate limited")}}}
	secondary := &stubClient{name: "openai", script: []stubResult{{content: "Handoff notes."}}}
	s := newService(t, clock.Fake(epoch), primary, secondary)

	got := s.Summarize(context.Background(), "Caller: help")
	if got != "Handoff notes." {
		t.Errorf("summary = %q", got)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls, secondary.calls)
	}
}

func TestEmptyCompletionTriesNextProvider(t *testing.T) {
	primary := &stubClient{name: "groq", script: []stubResult{{content: "   "}}}
	secondary := &stubClient{name: "openai", script: []stubResult{{content: "Real summary."}}}
	s := newService(t, clock.Fake(epoch), primary, secondary)

	got := s.Summarize(context.Background(), "Caller: hi")
	if got != "Real summary." {
		t.Errorf("summary = %q", got)
	}
}

func TestAllProvidersFailFallsBack(t *testing.T) {
	fc := clock.Fake(epoch)
	primary := &stubClient{name: "groq", script: []stubResult{{err: errors.New("down")}}}
	secondary := &stubClient{name: "openai", script: []stubResult{{err: errors.New("down")}}}
	s := newService(t, fc, primary, secondary)

	results := make(chan string, 1)
	go func() {
		results <- s.Summarize(context.Background(), "Caller: help\nAgent: sure")
	}()

	// Two backoff waits separate the three rounds.
	fc.WaitForTimers(1)
	fc.Advance(time.Second)
	fc.WaitForTimers(1)
	fc.Advance(2 * time.Second)

	var got string
	select {
	case got = <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("Summarize did not return")
	}

	want := "LLM unavailable — Notes: Agent: sure — please verify details."
	if got != want {
		t.Errorf("fallback = %q, want %q", got, want)
	}
	if primary.calls != 3 || secondary.calls != 3 {
		t.Errorf("calls = %d/%d, want 3/3", primary.calls, secondary.calls)
	}
}

func TestNoProvidersDeterministicFallback(t *testing.T) {
	s := New(Config{Clock: clock.Fake(epoch)})
	text := "Caller: my order 1234 never arrived\nAgent: checking now"

	first := s.Summarize(context.Background(), text)
	second := s.Summarize(context.Background(), text)
	if first != second {
		t.Errorf("fallback not deterministic: %q vs %q", first, second)
	}
	if !strings.Contains(first, "Agent: checking now") {
		t.Errorf("fallback %q missing last transcript line", first)
	}
	if !strings.Contains(first, "LLM unavailable") {
		t.Errorf("fallback %q missing template marker", first)
	}
}

func TestFallbackNoteTruncated(t *testing.T) {
	s := New(Config{Clock: clock.Fake(epoch)})
	long := strings.Repeat("x", 500)

	got := s.Summarize(context.Background(), long)
	want := "LLM unavailable — Notes: " + strings.Repeat("x", fallbackNoteLimit) + " — please verify details."
	if got != want {
		t.Errorf("fallback = %q (len %d), want bounded note", got, len(got))
	}
}

func TestTranscriptTruncatedBeforeRemoteCall(t *testing.T) {
	provider := &stubClient{name: "groq", script: []stubResult{{content: "ok"}}}
	s := newService(t, clock.Fake(epoch), provider)

	s.Summarize(context.Background(), strings.Repeat("a", 9000))

	if len(provider.prompts) != 1 {
		t.Fatalf("prompts recorded = %d, want 1", len(provider.prompts))
	}
	prompt := provider.prompts[0]
	start := strings.Index(prompt, "Context:\n")
	end := strings.Index(prompt, "\n\nSummary:")
	if start < 0 || end < 0 {
		t.Fatalf("prompt missing template sections: %q", prompt[:80])
	}
	body := prompt[start+len("Context:\n") : end]
	if len(body) != 8000 {
		t.Errorf("transcript sent = %d chars, want 8000", len(body))
	}
}
