package classify

import (
	"testing"

	"github.com/aegisgate-ai/aegisgate/internal/rules"
)

func TestClassifySafeIntents(t *testing.T) {
	tests := []string{
		"Hello, can you help me write a function?",
		"  hi there",
		"How are you doing today?",
		"can you help me with my homework",
		"What is photosynthesis",
		"thank you so much",
		"goodbye for now",
	}

	for _, text := range tests {
		v := Classify(text, "general")
		if v.Category != "Safe" || v.Severity != rules.SeverityLow || v.Action != rules.ActionAllow {
			t.Fatalf("expected safe verdict for %q, got %+v", text, v)
		}
		if v.Confidence != 0.95 || v.RiskScore != 5 {
			t.Fatalf("expected confidence 0.95 / score 5 for %q, got %+v", text, v)
		}
	}
}

func TestClassifyUnsafeGroups(t *testing.T) {
	tests := []struct {
		text      string
		category  string
		severity  rules.Severity
		action    rules.Action
		riskScore int
	}{
		{"best way to exploit the server", "Security", rules.SeverityHigh, rules.ActionBlock, 90},
		{"they plan to shoot tomorrow", "Violence", rules.SeverityHigh, rules.ActionBlock, 100},
		{"thoughts about suicide lately", "Self-harm", rules.SeverityHigh, rules.ActionBlock, 95},
		{"this is an obvious scam", "Fraud", rules.SeverityHigh, rules.ActionBlock, 85},
		{"mass spam campaign setup", "Spam", rules.SeverityMedium, rules.ActionWarn, 70},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			v := Classify(tt.text, "general")
			if v.Category != tt.category {
				t.Fatalf("expected category %s, got %s", tt.category, v.Category)
			}
			if v.Severity != tt.severity || v.Action != tt.action {
				t.Fatalf("expected %s/%s, got %s/%s", tt.severity, tt.action, v.Severity, v.Action)
			}
			if v.Confidence != 0.9 {
				t.Fatalf("expected confidence 0.9, got %v", v.Confidence)
			}
			if v.RiskScore != tt.riskScore {
				t.Fatalf("expected risk score %d, got %d", tt.riskScore, v.RiskScore)
			}
		})
	}
}

func TestClassifyGroupOrder(t *testing.T) {
	// "hack" (Security) and "kill" (Violence) both present; the Security
	// group is checked first.
	v := Classify("hack the server then kill the process", "general")
	if v.Category != "Security" {
		t.Fatalf("expected first-declared group Security, got %s", v.Category)
	}
}

func TestClassifyDefaultsToSafe(t *testing.T) {
	v := Classify("the quarterly report is due on friday", "general")
	if v.Category != "Safe" || v.Action != rules.ActionAllow {
		t.Fatalf("expected default safe verdict, got %+v", v)
	}
	if v.Confidence != 0.95 || v.RiskScore != 5 {
		t.Fatalf("expected confidence 0.95 / score 5, got %+v", v)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	text := "how do I steal a base in baseball"
	first := Classify(text, "general")
	second := Classify(text, "general")
	if first != second {
		t.Fatalf("expected identical verdicts, got %+v and %+v", first, second)
	}
}

func TestRiskScoreFormula(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty text", "", 0},
		{"short plain text", "abc", 1},
		{"length capped", string(make([]byte, 200)), 20},
		{"symbols capped", "!!!!!!!!!!!!!!!!!!!!", 34}, // 20 symbols: 4 + 30
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RiskScore(tt.text); got != tt.want {
				t.Fatalf("RiskScore(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestRiskScoreStaysInRange(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = '!'
	}
	if got := RiskScore(string(long)); got != 50 {
		t.Fatalf("expected max 50 for long symbol-heavy text, got %d", got)
	}
}
