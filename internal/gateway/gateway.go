// Package gateway sequences one request end to end: validate, detect, decide,
// respond, and log. Each request runs independently to completion with no
// shared mutable state beyond the static rule table.
package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aegisgate-ai/aegisgate/internal/auditlog"
	"github.com/aegisgate-ai/aegisgate/internal/detect"
	"github.com/aegisgate-ai/aegisgate/internal/keystore"
	"github.com/aegisgate-ai/aegisgate/internal/metrics"
	"github.com/aegisgate-ai/aegisgate/internal/policy"
	"github.com/aegisgate-ai/aegisgate/internal/responder"
	"github.com/aegisgate-ai/aegisgate/internal/rules"
)

// Terminal states of one request.
const (
	StatusSuccess = "success"
	StatusBlocked = "blocked"
	StatusError   = "error"
)

// ErrInvalidClient is the user-visible authentication failure message.
const ErrInvalidClient = "Invalid API key or client"

// Validator is the key-store collaborator contract.
type Validator interface {
	Validate(ctx context.Context, apiKey, clientID string) keystore.ClientValidation
}

// Request is one inbound chat request after HTTP decoding.
type Request struct {
	Text           string
	APIKey         string
	ClientID       string
	ConversationID string
	Context        string
	IPAddress      string
	UserAgent      string
}

// Outcome is the structured result handed back to the transport layer.
type Outcome struct {
	RequestID string
	Status    string
	IsSafe    bool
	Detection detect.Result
	Action    rules.Action
	Reply     *responder.Reply
	Message   string
	Err       string
}

// Gateway owns the per-request protocol.
type Gateway struct {
	keys       Validator
	generator  responder.Generator
	audit      *auditlog.Emitter
	metrics    *metrics.Collector
	logger     *zap.Logger
	genTimeout time.Duration
}

// New wires the orchestrator. genTimeout bounds the Response Generator call,
// the one step that can be a real upstream network call in production.
func New(keys Validator, gen responder.Generator, audit *auditlog.Emitter, m *metrics.Collector, logger *zap.Logger, genTimeout time.Duration) *Gateway {
	if genTimeout <= 0 {
		genTimeout = 10 * time.Second
	}
	return &Gateway{
		keys:       keys,
		generator:  gen,
		audit:      audit,
		metrics:    m,
		logger:     logger,
		genTimeout: genTimeout,
	}
}

// Process runs the full protocol. It never returns before writing (or at
// least enqueueing) exactly one audit entry for the request, and a logging
// failure never alters the outcome already computed.
func (g *Gateway) Process(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	requestID := NewRequestID()

	if req.ConversationID == "" {
		req.ConversationID = fmt.Sprintf("conv_%d", time.Now().UnixMilli())
	}
	if req.Context == "" {
		req.Context = "general"
	}
	if req.IPAddress == "" {
		req.IPAddress = "127.0.0.1"
	}
	if req.UserAgent == "" {
		req.UserAgent = "API-Client/1.0"
	}

	// Boundary recovery: anything escaping detection or decisioning becomes
	// an error outcome with action ERROR, never a crashed request.
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			g.logger.Error("unhandled request failure",
				zap.String("request_id", requestID),
				zap.String("panic", msg))
			g.log(ctx, req, requestID, detect.Result{Err: msg}, "ERROR",
				&responder.Reply{Content: "Processing failed"}, start)
			out = Outcome{
				RequestID: requestID,
				Status:    StatusError,
				Err:       msg,
			}
			g.metrics.RecordRequest(StatusError, time.Since(start))
		}
	}()

	// 1. Validate. No detection is attempted on unauthenticated requests.
	validation := g.keys.Validate(ctx, req.APIKey, req.ClientID)
	if !validation.Valid {
		g.log(ctx, req, requestID, detect.Result{Err: ErrInvalidClient}, "ERROR",
			&responder.Reply{Content: "Authentication failed"}, start)
		g.metrics.RecordRequest(StatusError, time.Since(start))
		return Outcome{
			RequestID: requestID,
			Status:    StatusError,
			Err:       ErrInvalidClient,
		}
	}

	clientCfg := keystore.ClientConfig{}
	if validation.ClientConfig != nil {
		clientCfg = *validation.ClientConfig
	}

	// 2. Detect.
	detection := detect.Detect(req.Text, req.Context)
	g.metrics.RecordDetection(detection.DetectionMethod, detection.Category)

	// 3. Branch on safety.
	if detection.IsSafe {
		genCtx, cancel := context.WithTimeout(ctx, g.genTimeout)
		defer cancel()

		reply, err := g.generator.Generate(genCtx, req.Text, clientCfg)
		if err != nil {
			g.logger.Warn("response generation failed, using fallback",
				zap.String("request_id", requestID), zap.Error(err))
			reply = responder.Fallback(err)
		}

		g.log(ctx, req, requestID, detection, string(rules.ActionAllow), reply, start)
		g.metrics.RecordAction(string(rules.ActionAllow))
		g.metrics.RecordRequest(StatusSuccess, time.Since(start))
		return Outcome{
			RequestID: requestID,
			Status:    StatusSuccess,
			IsSafe:    true,
			Detection: detection,
			Action:    rules.ActionAllow,
			Reply:     reply,
		}
	}

	action := policy.Decide(detection, clientCfg)
	g.log(ctx, req, requestID, detection, string(action.Action),
		&responder.Reply{Content: action.Message}, start)
	g.metrics.RecordAction(string(action.Action))
	g.metrics.RecordRequest(StatusBlocked, time.Since(start))
	return Outcome{
		RequestID: requestID,
		Status:    StatusBlocked,
		IsSafe:    false,
		Detection: detection,
		Action:    action.Action,
		Message:   action.Message,
	}
}

// log enqueues the audit entry. Fire-and-forget: delivery failures are the
// emitter's problem, never the caller's.
func (g *Gateway) log(ctx context.Context, req Request, requestID string, detection detect.Result, action string, reply *responder.Reply, start time.Time) {
	g.audit.Emit(ctx, &auditlog.Entry{
		RequestID:        requestID,
		ClientID:         req.ClientID,
		ConversationID:   req.ConversationID,
		Text:             req.Text,
		Context:          req.Context,
		SafetyResult:     detection,
		Action:           action,
		Response:         reply,
		Timestamp:        start.UTC(),
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		IPAddress:        req.IPAddress,
		UserAgent:        req.UserAgent,
	})
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewRequestID builds a log-correlation id of the form
// req_<epoch-ms>_<9-char base36>. Uniqueness is probabilistic, not enforced.
func NewRequestID() string {
	var buf [9]byte
	suffix := make([]byte, 9)
	if _, err := rand.Read(buf[:]); err != nil {
		// Degenerate suffix; the epoch prefix still orders entries.
		for i := range suffix {
			suffix[i] = '0'
		}
	} else {
		for i, b := range buf {
			suffix[i] = base36[int(b)%len(base36)]
		}
	}
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), suffix)
}
