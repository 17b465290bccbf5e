// Package classify is the second line of the safety pipeline: a heuristic
// text classifier consulted only when no rule matched, plus the risk-score
// fallback that guarantees every verdict carries a numeric score.
package classify

import (
	"math"
	"regexp"
	"strings"

	"github.com/aegisgate-ai/aegisgate/internal/rules"
)

// Verdict is the classifier's judgment of one piece of text.
type Verdict struct {
	Category   string
	Severity   rules.Severity
	Action     rules.Action
	Confidence float64
	RiskScore  int
}

// Safe-intent patterns, anchored at the start of the trimmed text. First
// match short-circuits to the safe verdict.
var safePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hello|hi|hey|good\s+(morning|afternoon|evening))`),
	regexp.MustCompile(`(?i)^(how\s+are\s+you|how\s+do\s+you\s+do|what's\s+up)`),
	regexp.MustCompile(`(?i)^(can\s+you\s+help|please\s+help|i\s+need\s+help)`),
	regexp.MustCompile(`(?i)^(what\s+is|how\s+to|explain|describe|tell\s+me)`),
	regexp.MustCompile(`(?i)^(thank\s+you|thanks|appreciate|grateful)`),
	regexp.MustCompile(`(?i)^(goodbye|bye|see\s+you|take\s+care)`),
}

type unsafeGroup struct {
	pattern   *regexp.Regexp
	category  string
	severity  rules.Severity
	action    rules.Action
	riskScore int
}

// Unsafe keyword groups, checked in order after the safe patterns miss.
var unsafeGroups = []unsafeGroup{
	{regexp.MustCompile(`(?i)(hack|exploit|vulnerability|backdoor)`), "Security", rules.SeverityHigh, rules.ActionBlock, 90},
	{regexp.MustCompile(`(?i)(kill|murder|assassinate|bomb|shoot)`), "Violence", rules.SeverityHigh, rules.ActionBlock, 100},
	{regexp.MustCompile(`(?i)(suicide|self.?harm|kill.?myself)`), "Self-harm", rules.SeverityHigh, rules.ActionBlock, 95},
	{regexp.MustCompile(`(?i)(scam|fraud|steal|cheat)`), "Fraud", rules.SeverityHigh, rules.ActionBlock, 85},
	{regexp.MustCompile(`(?i)(spam|free.?money|lottery|winner)`), "Spam", rules.SeverityMedium, rules.ActionWarn, 70},
}

func safeVerdict() Verdict {
	return Verdict{
		Category:   "Safe",
		Severity:   rules.SeverityLow,
		Action:     rules.ActionAllow,
		Confidence: 0.95,
		RiskScore:  5,
	}
}

// degradedSafeVerdict is the fail-open result. The classifier never hard-fails:
// an internal failure yields a low-confidence Safe rather than a block. This is
// a deliberate availability-over-caution policy; changing it needs product
// sign-off.
func degradedSafeVerdict() Verdict {
	return Verdict{
		Category:   "Safe",
		Severity:   rules.SeverityLow,
		Action:     rules.ActionAllow,
		Confidence: 0.5,
		RiskScore:  15,
	}
}

// Classify judges text that matched no rule. Evaluation order: anchored
// safe-intent patterns, then unsafe keyword groups, then default safe.
// Pure and idempotent; context is accepted for future classifier backends.
func Classify(text, context string) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = degradedSafeVerdict()
		}
	}()
	_ = context

	trimmed := strings.TrimSpace(text)
	for _, p := range safePatterns {
		if p.MatchString(trimmed) {
			return safeVerdict()
		}
	}

	for _, g := range unsafeGroups {
		if g.pattern.MatchString(text) {
			return Verdict{
				Category:   g.category,
				Severity:   g.severity,
				Action:     g.action,
				Confidence: 0.9,
				RiskScore:  g.riskScore,
			}
		}
	}

	return safeVerdict()
}

var specialChars = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]`)

// RiskScore computes the fallback 0..100 score from text shape alone: longer
// text and heavier symbol density raise it. A weak non-semantic proxy: it
// only exists so every detection result carries a number, and callers must
// not weigh it like a rule or classifier score.
func RiskScore(text string) int {
	score := math.Min(float64(len(text))/100, 1) * 20
	special := len(specialChars.FindAllString(text, -1))
	score += math.Min(float64(special)/10, 1) * 30
	return int(math.Round(score))
}
