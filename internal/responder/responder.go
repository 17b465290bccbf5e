// Package responder produces replies for allowed text. The mock generator is
// a placeholder for a real LLM integration; only the Generator interface and
// the apology fallback are contract.
package responder

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/aegisgate-ai/aegisgate/internal/keystore"
)

// Reply is one generated response.
type Reply struct {
	Content     string `json:"content"`
	Model       string `json:"model"`
	GeneratedAt string `json:"generated_at"`
	Err         string `json:"error,omitempty"`
}

// Generator produces a reply for text that passed the safety pipeline.
// Implementations must respect ctx; the gateway wraps calls in a timeout.
type Generator interface {
	Generate(ctx context.Context, text string, cfg keystore.ClientConfig) (*Reply, error)
}

// Intent buckets a prompt for template selection. The mapping is total:
// every prompt lands in exactly one intent.
type Intent int

const (
	IntentDefault Intent = iota
	IntentGreeting
	IntentQuestion
	IntentHelp
)

func (i Intent) String() string {
	switch i {
	case IntentGreeting:
		return "greeting"
	case IntentQuestion:
		return "question"
	case IntentHelp:
		return "help"
	default:
		return "default"
	}
}

// ClassifyIntent buckets text by the first matching keyword family.
func ClassifyIntent(text string) Intent {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi") || strings.Contains(lower, "how are you"):
		return IntentGreeting
	case strings.Contains(lower, "how") || strings.Contains(lower, "what") || strings.Contains(lower, "why"):
		return IntentQuestion
	case strings.Contains(lower, "help") || strings.Contains(lower, "assist"):
		return IntentHelp
	default:
		return IntentDefault
	}
}

var templates = map[Intent][]string{
	IntentGreeting: {
		"Hello! I'm doing well, thank you for asking. How are you today?",
		"Hi there! I'm here and ready to help you with anything you need.",
		"Hello! I'm doing great. What can I assist you with today?",
	},
	IntentQuestion: {
		"That's a great question! Let me help you with that.",
		"I'd be happy to help you with that. Here's what I know...",
		"That's an interesting topic. Let me provide some information...",
	},
	IntentHelp: {
		"I'm here to help! What specific assistance do you need?",
		"Of course! I'd be happy to help you with that.",
		"I'm ready to assist you. What would you like to know?",
	},
	IntentDefault: {
		"I'm here to help you with your request.",
		"Thank you for reaching out. How can I assist you?",
		"I'm ready to help. What would you like to know?",
	},
}

const fallbackContent = "I apologize, but I'm unable to generate a response at the moment. Please try again later."

// Fallback is the fixed apology reply used when generation fails.
func Fallback(err error) *Reply {
	r := &Reply{
		Content:     fallbackContent,
		Model:       "fallback",
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Mock is the placeholder generator: intent-bucketed canned templates.
type Mock struct {
	model string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock builds a mock generator reporting the given model name.
func NewMock(model string) *Mock {
	if model == "" {
		model = "mock-llm-v1"
	}
	return &Mock{
		model: model,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewMockSeeded builds a mock generator with a fixed seed for tests.
func NewMockSeeded(model string, seed int64) *Mock {
	m := NewMock(model)
	m.rng = rand.New(rand.NewSource(seed))
	return m
}

func (m *Mock) Generate(ctx context.Context, text string, _ keystore.ClientConfig) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pool := templates[ClassifyIntent(text)]

	m.mu.Lock()
	content := pool[m.rng.Intn(len(pool))]
	m.mu.Unlock()

	return &Reply{
		Content:     content,
		Model:       m.model,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}
