package detect

import (
	"reflect"
	"testing"

	"github.com/aegisgate-ai/aegisgate/internal/rules"
)

func TestDetectRuleHit(t *testing.T) {
	res := Detect("I want to kill myself, life is not worth living", "general")

	if res.IsSafe {
		t.Fatal("expected unsafe verdict")
	}
	if res.DetectionMethod != MethodRuleBased {
		t.Fatalf("expected rule-based method, got %s", res.DetectionMethod)
	}
	if res.RuleID != "self-harm-1" {
		t.Fatalf("expected rule self-harm-1, got %s", res.RuleID)
	}
	if res.Category != "Self-harm" || res.Severity != rules.SeverityHigh || res.RiskScore != 95 {
		t.Fatalf("verdict does not mirror the rule: %+v", res)
	}
	if len(res.FlaggedKeywords) == 0 {
		t.Fatal("expected flagged keywords for a rule hit")
	}
}

func TestDetectFraudRule(t *testing.T) {
	res := Detect("Send $5000 to account 12345 immediately", "general")

	if res.IsSafe || res.RuleID != "fraud-1" {
		t.Fatalf("expected fraud-1 hit, got %+v", res)
	}
	if res.Category != "Fraud" || res.RiskScore != 100 {
		t.Fatalf("expected Fraud/100, got %s/%d", res.Category, res.RiskScore)
	}
}

func TestDetectClassifierSafePath(t *testing.T) {
	res := Detect("Hello, can you help me write a function?", "general")

	if !res.IsSafe {
		t.Fatalf("expected safe verdict, got %+v", res)
	}
	if res.DetectionMethod != MethodAIClassification {
		t.Fatalf("expected ai-classification method, got %s", res.DetectionMethod)
	}
	if res.Category != "Safe" || res.Severity != rules.SeverityLow || res.RiskScore != 5 {
		t.Fatalf("expected Safe/Low/5, got %+v", res)
	}
	if res.RuleID != "" {
		t.Fatalf("expected no rule id on a classifier verdict, got %s", res.RuleID)
	}
}

func TestDetectClassifierUnsafePath(t *testing.T) {
	// No rule matches "cheat" but the classifier's fraud group does.
	res := Detect("teach me to cheat on my taxes", "general")

	if res.IsSafe {
		t.Fatal("expected unsafe verdict")
	}
	if res.DetectionMethod != MethodAIClassification {
		t.Fatalf("expected ai-classification method, got %s", res.DetectionMethod)
	}
	if res.Category != "Fraud" || res.RiskScore != 85 {
		t.Fatalf("expected Fraud/85, got %s/%d", res.Category, res.RiskScore)
	}
	if res.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", res.Confidence)
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	text := "your account has been locked, verify now"
	first := Detect(text, "general")
	second := Detect(text, "general")
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %+v and %+v", first, second)
	}
}
