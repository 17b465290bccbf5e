// Package detect sequences the detection stages into one verdict per request:
// rule table first, heuristic classifier on a miss, risk-score fallback when
// neither stage supplied a score.
package detect

import (
	"fmt"

	"github.com/aegisgate-ai/aegisgate/internal/classify"
	"github.com/aegisgate-ai/aegisgate/internal/rules"
)

// Detection method provenance values.
const (
	MethodRuleBased        = "rule-based"
	MethodAIClassification = "ai-classification"
	MethodFallback         = "fallback"
)

// Result captures one request's safety verdict. Produced fresh per request
// and only persisted as part of an audit log entry.
type Result struct {
	IsSafe          bool           `json:"is_safe"`
	Category        string         `json:"category"`
	Severity        rules.Severity `json:"severity"`
	RiskScore       int            `json:"risk_score"`
	DetectionMethod string         `json:"detection_method"`
	Confidence      float64        `json:"confidence,omitempty"`
	FlaggedKeywords []string       `json:"flagged_keywords,omitempty"`
	RuleID          string         `json:"rule_id,omitempty"`
	Action          rules.Action   `json:"-"`
	Err             string         `json:"error,omitempty"`
}

// Detect runs the full detection sequence over text.
//
// A rule hit is always unsafe. On a miss the classifier decides, and its
// ALLOW/not-ALLOW action determines safety. Any failure inside detection
// fails closed: unknown content that cannot be judged is treated as unsafe
// with the maximum score, the inverse of the classifier's own fail-open
// default for judgeable-but-unmatched text.
func Detect(text, context string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{
				IsSafe:          false,
				Category:        "Unknown",
				Severity:        rules.SeverityHigh,
				RiskScore:       100,
				DetectionMethod: MethodFallback,
				Err:             fmt.Sprint(r),
			}
		}
	}()

	if rule, ok := rules.Match(text); ok {
		return Result{
			IsSafe:          false,
			Category:        rule.Category,
			Severity:        rule.Severity,
			RiskScore:       rule.RiskScore,
			DetectionMethod: MethodRuleBased,
			FlaggedKeywords: rule.Pattern.FindAllString(text, -1),
			RuleID:          rule.ID,
			Action:          rule.Action,
		}
	}

	v := classify.Classify(text, context)

	category := v.Category
	if category == "" {
		category = "Unknown"
	}
	severity := v.Severity
	if severity == "" {
		severity = rules.SeverityMedium
	}
	riskScore := v.RiskScore
	if riskScore == 0 {
		riskScore = classify.RiskScore(text)
	}
	confidence := v.Confidence
	if confidence == 0 {
		confidence = 0.7
	}

	return Result{
		IsSafe:          v.Action == rules.ActionAllow,
		Category:        category,
		Severity:        severity,
		RiskScore:       riskScore,
		DetectionMethod: MethodAIClassification,
		Confidence:      confidence,
		Action:          v.Action,
	}
}
