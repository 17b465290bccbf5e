package gateway

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aegisgate-ai/aegisgate/internal/auditlog"
	"github.com/aegisgate-ai/aegisgate/internal/keystore"
	"github.com/aegisgate-ai/aegisgate/internal/responder"
	"github.com/aegisgate-ai/aegisgate/internal/rules"
)

type fakeValidator struct {
	valid bool
}

func (f fakeValidator) Validate(_ context.Context, apiKey, clientID string) keystore.ClientValidation {
	if !f.valid {
		return keystore.ClientValidation{Valid: false, Err: "key not found"}
	}
	return keystore.ClientValidation{
		Valid:        true,
		ClientConfig: &keystore.ClientConfig{LLMModel: "test-model", MaxTokens: 100, Temperature: 0.5},
		ClientInfo:   &keystore.ClientInfo{ID: clientID, Name: "Test", Plan: "free", RateLimit: 1000},
	}
}

type fakeGenerator struct {
	err error
}

type panicGenerator struct{}

func (panicGenerator) Generate(context.Context, string, keystore.ClientConfig) (*responder.Reply, error) {
	panic("responder exploded")
}

func (f fakeGenerator) Generate(ctx context.Context, text string, _ keystore.ClientConfig) (*responder.Reply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &responder.Reply{Content: "generated: " + text, Model: "test-model"}, nil
}

// captureSink records audit entries for assertions.
type captureSink struct {
	mu      sync.Mutex
	entries []*auditlog.Entry
}

func (c *captureSink) Name() string { return "capture" }
func (c *captureSink) Deliver(_ context.Context, e *auditlog.Entry) error {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
	return nil
}
func (c *captureSink) Close(context.Context) error { return nil }

func (c *captureSink) all() []*auditlog.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*auditlog.Entry(nil), c.entries...)
}

func newTestGateway(v Validator, gen responder.Generator) (*Gateway, *auditlog.Emitter, *captureSink) {
	sink := &captureSink{}
	em := auditlog.NewEmitter(auditlog.EmitterConfig{QueueSize: 16, Workers: 1}, []auditlog.Sink{sink}, zap.NewNop())
	gw := New(v, gen, em, nil, zap.NewNop(), time.Second)
	return gw, em, sink
}

func TestProcessSafeText(t *testing.T) {
	gw, em, sink := newTestGateway(fakeValidator{valid: true}, fakeGenerator{})

	out := gw.Process(context.Background(), Request{
		Text:     "Hello, how are you?",
		APIKey:   "ak_test",
		ClientID: "client-1",
	})
	em.Close(context.Background())

	if out.Status != StatusSuccess || !out.IsSafe {
		t.Fatalf("expected success outcome, got %+v", out)
	}
	if out.Reply == nil || out.Reply.Content != "generated: Hello, how are you?" {
		t.Fatalf("unexpected reply: %+v", out.Reply)
	}
	if out.Action != rules.ActionAllow {
		t.Fatalf("expected ALLOW, got %s", out.Action)
	}

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != "ALLOW" || e.ClientID != "client-1" {
		t.Fatalf("unexpected audit entry: %+v", e)
	}
	if e.Context != "general" || e.IPAddress != "127.0.0.1" || e.UserAgent != "API-Client/1.0" {
		t.Fatalf("defaults not applied: %+v", e)
	}
	if e.ConversationID == "" {
		t.Fatal("expected generated conversation id")
	}
}

func TestProcessBlockedText(t *testing.T) {
	gw, em, sink := newTestGateway(fakeValidator{valid: true}, fakeGenerator{})

	out := gw.Process(context.Background(), Request{
		Text:     "I want to kill myself",
		APIKey:   "ak_test",
		ClientID: "client-1",
	})
	em.Close(context.Background())

	if out.Status != StatusBlocked || out.IsSafe {
		t.Fatalf("expected blocked outcome, got %+v", out)
	}
	if out.Action != rules.ActionBlock {
		t.Fatalf("expected BLOCK, got %s", out.Action)
	}
	if out.Message != "This content has been blocked due to policy violations." {
		t.Fatalf("unexpected message: %q", out.Message)
	}
	if out.Reply != nil {
		t.Fatal("blocked outcome must not carry a generated reply")
	}
	if out.Detection.RuleID != "self-harm-1" {
		t.Fatalf("expected self-harm-1 rule hit, got %q", out.Detection.RuleID)
	}

	entries := sink.all()
	if len(entries) != 1 || entries[0].Action != "BLOCK" {
		t.Fatalf("expected one BLOCK audit entry, got %+v", entries)
	}
}

// Authentication failures are still logged, with action ERROR, so the audit
// trail covers rejected callers too.
func TestProcessInvalidCredentials(t *testing.T) {
	gw, em, sink := newTestGateway(fakeValidator{valid: false}, fakeGenerator{})

	out := gw.Process(context.Background(), Request{
		Text:     "Hello",
		APIKey:   "ak_bogus",
		ClientID: "client-1",
	})
	em.Close(context.Background())

	if out.Status != StatusError {
		t.Fatalf("expected error outcome, got %+v", out)
	}
	if out.Err != ErrInvalidClient {
		t.Fatalf("expected %q, got %q", ErrInvalidClient, out.Err)
	}

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != "ERROR" {
		t.Fatalf("expected ERROR action, got %s", e.Action)
	}
	if e.SafetyResult.Err != ErrInvalidClient {
		t.Fatalf("expected error recorded in safety result, got %+v", e.SafetyResult)
	}
	if e.Response == nil || e.Response.Content != "Authentication failed" {
		t.Fatalf("unexpected logged response: %+v", e.Response)
	}
}

func TestProcessGeneratorFailureFallsBack(t *testing.T) {
	gw, em, _ := newTestGateway(fakeValidator{valid: true}, fakeGenerator{err: errors.New("upstream down")})

	out := gw.Process(context.Background(), Request{
		Text:     "Hello",
		APIKey:   "ak_test",
		ClientID: "client-1",
	})
	em.Close(context.Background())

	if out.Status != StatusSuccess {
		t.Fatalf("generation failure must not fail the request: %+v", out)
	}
	if out.Reply == nil || out.Reply.Model != "fallback" {
		t.Fatalf("expected fallback reply, got %+v", out.Reply)
	}
	if out.Reply.Err != "upstream down" {
		t.Fatalf("expected cause carried through, got %q", out.Reply.Err)
	}
}

// A panic anywhere past validation becomes an error outcome with action ERROR,
// never a crashed request, and still produces exactly one audit entry.
func TestProcessRecoversFromPanic(t *testing.T) {
	gw, em, sink := newTestGateway(fakeValidator{valid: true}, panicGenerator{})

	out := gw.Process(context.Background(), Request{
		Text:     "Hello",
		APIKey:   "ak_test",
		ClientID: "client-1",
	})
	em.Close(context.Background())

	if out.Status != StatusError {
		t.Fatalf("expected error outcome, got %+v", out)
	}
	if out.Err != "responder exploded" {
		t.Fatalf("expected panic message in outcome, got %q", out.Err)
	}
	if out.RequestID == "" {
		t.Fatal("expected a request id on the error outcome")
	}

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Action != "ERROR" {
		t.Fatalf("expected ERROR action, got %s", e.Action)
	}
	if e.SafetyResult.Err != "responder exploded" {
		t.Fatalf("expected failure recorded in safety result, got %+v", e.SafetyResult)
	}
	if e.Response == nil || e.Response.Content != "Processing failed" {
		t.Fatalf("unexpected logged response: %+v", e.Response)
	}
}

func TestProcessPreservesCallerFields(t *testing.T) {
	gw, em, sink := newTestGateway(fakeValidator{valid: true}, fakeGenerator{})

	gw.Process(context.Background(), Request{
		Text:           "Hello",
		APIKey:         "ak_test",
		ClientID:       "client-1",
		ConversationID: "conv_custom",
		Context:        "support",
		IPAddress:      "10.0.0.9",
		UserAgent:      "curl/8.0",
	})
	em.Close(context.Background())

	entries := sink.all()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ConversationID != "conv_custom" || e.Context != "support" ||
		e.IPAddress != "10.0.0.9" || e.UserAgent != "curl/8.0" {
		t.Fatalf("caller fields overwritten: %+v", e)
	}
}

var requestIDPattern = regexp.MustCompile(`^req_\d+_[0-9a-z]{9}$`)

func TestNewRequestIDFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		if !requestIDPattern.MatchString(id) {
			t.Fatalf("malformed request id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}
