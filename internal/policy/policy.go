// Package policy centralizes enforcement. Detection verdicts are advisory;
// the thresholds that turn them into actions live here and nowhere else.
package policy

import (
	"github.com/aegisgate-ai/aegisgate/internal/detect"
	"github.com/aegisgate-ai/aegisgate/internal/keystore"
	"github.com/aegisgate-ai/aegisgate/internal/rules"
)

// Score cutoffs for the block/warn guards. Tuning happens here, independent
// of which detection method produced the score.
const (
	BlockThreshold = 90
	WarnThreshold  = 70
)

const (
	msgSafe    = "Content is safe."
	msgBlocked = "This content has been blocked due to policy violations."
	msgFlagged = "This content has been flagged for review."
	msgCaution = "Content processed with caution."
)

// ActionResult is the final enforcement decision for one request.
type ActionResult struct {
	Action              rules.Action `json:"action"`
	Message             string       `json:"message"`
	Reason              string       `json:"reason"`
	AdminReviewRequired bool         `json:"admin_review_required"`
}

// Decide maps a detection result to an enforcement action. Total function
// over four ordered guards; the first that holds wins.
//
// Guard 1 trusts an upstream ALLOW over the verdict's own risk score. That is
// the recorded behavior: the detector's holistic judgment outranks its numeric
// proxy. Whether that is defense-in-depth or a latent hole is an open product
// question; do not reorder the guards without sign-off.
func Decide(res detect.Result, _ keystore.ClientConfig) ActionResult {
	if res.Action == rules.ActionAllow {
		return ActionResult{
			Action:              rules.ActionAllow,
			Message:             msgSafe,
			Reason:              res.Category,
			AdminReviewRequired: false,
		}
	}

	if res.RiskScore >= BlockThreshold || res.Severity == rules.SeverityHigh {
		return ActionResult{
			Action:              rules.ActionBlock,
			Message:             msgBlocked,
			Reason:              res.Category,
			AdminReviewRequired: true,
		}
	}

	if res.RiskScore >= WarnThreshold || res.Severity == rules.SeverityMedium {
		return ActionResult{
			Action:              rules.ActionWarn,
			Message:             msgFlagged,
			Reason:              res.Category,
			AdminReviewRequired: false,
		}
	}

	return ActionResult{
		Action:              rules.ActionAllow,
		Message:             msgCaution,
		Reason:              res.Category,
		AdminReviewRequired: false,
	}
}
