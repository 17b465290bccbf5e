// Package rules implements the deterministic first line of the safety pipeline:
// an ordered, immutable table of regex rules compiled once at startup.
// The first rule whose pattern occurs anywhere in the text wins; declaration
// order is the only precedence mechanism.
package rules

import "regexp"

// Severity grades how harmful a matched rule is considered.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// Action is the enforcement decision a rule recommends.
type Action string

const (
	ActionAllow    Action = "ALLOW"
	ActionWarn     Action = "WARN"
	ActionBlock    Action = "BLOCK"
	ActionEscalate Action = "ESC"
)

// Rule maps one pattern to a verdict. Rules never change after startup.
type Rule struct {
	ID         string
	Pattern    *regexp.Regexp
	Category   string
	Severity   Severity
	Action     Action
	RiskScore  int // 0..100
	PolicyType string
}

// The table is deliberately not normalized: matching is substring-anywhere,
// case-insensitive only where the pattern says so. Numeric shapes (SSN, card
// numbers) and symbol-run heuristics stay case-sensitive by nature.
var table = []Rule{
	// Self-harm
	{ID: "self-harm-1", Pattern: regexp.MustCompile(`(?i)(?:kill\s+myself|end\s+my\s+life|commit\s+suicide|want\s+to\s+die)`), Category: "Self-harm", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 95, PolicyType: "safety"},
	{ID: "self-harm-2", Pattern: regexp.MustCompile(`(?i)(?:hurt\s+myself|self\s+harm|cut\s+myself|overdose)`), Category: "Self-harm", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 90, PolicyType: "safety"},
	{ID: "self-harm-3", Pattern: regexp.MustCompile(`(?i)(?:life\s+isn't\s+worth|no\s+reason\s+to\s+live|better\s+off\s+dead)`), Category: "Self-harm", Severity: SeverityMedium, Action: ActionWarn, RiskScore: 75, PolicyType: "safety"},

	// Violence
	{ID: "violence-1", Pattern: regexp.MustCompile(`(?i)(?:kill\s+(?:you|them|him|her)|murder|assassinate|bomb|shoot)`), Category: "Violence", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 100, PolicyType: "safety"},
	{ID: "violence-2", Pattern: regexp.MustCompile(`(?i)(?:attack|assault|beat\s+up|fight|violence)`), Category: "Violence", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 85, PolicyType: "safety"},
	{ID: "violence-3", Pattern: regexp.MustCompile(`(?i)(?:weapon|gun|knife|explosive|terrorist)`), Category: "Violence", Severity: SeverityMedium, Action: ActionWarn, RiskScore: 70, PolicyType: "safety"},

	// Harassment
	{ID: "harassment-1", Pattern: regexp.MustCompile(`(?i)(?:stupid|idiot|moron|dumb|retard)`), Category: "Harassment", Severity: SeverityMedium, Action: ActionWarn, RiskScore: 65, PolicyType: "conduct"},
	{ID: "harassment-2", Pattern: regexp.MustCompile(`(?i)(?:hate\s+you|disgusting|awful|terrible)`), Category: "Harassment", Severity: SeverityMedium, Action: ActionWarn, RiskScore: 60, PolicyType: "conduct"},
	{ID: "harassment-3", Pattern: regexp.MustCompile(`(?i)(?:racist|sexist|homophobic|discriminatory)`), Category: "Harassment", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 80, PolicyType: "conduct"},

	// PII
	{ID: "pii-1", Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), Category: "PII", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 95, PolicyType: "privacy"},
	{ID: "pii-2", Pattern: regexp.MustCompile(`\b\d{3}\s\d{2}\s\d{4}\b`), Category: "PII", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 95, PolicyType: "privacy"},
	{ID: "pii-3", Pattern: regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), Category: "PII", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 100, PolicyType: "privacy"},
	{ID: "pii-4", Pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), Category: "PII", Severity: SeverityMedium, Action: ActionWarn, RiskScore: 50, PolicyType: "privacy"},

	// Malware
	{ID: "malware-1", Pattern: regexp.MustCompile(`(?i)(?:virus|malware|trojan|worm|spyware|keylogger)`), Category: "Malware", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 100, PolicyType: "security"},
	{ID: "malware-2", Pattern: regexp.MustCompile(`(?i)(?:hack|exploit|vulnerability|backdoor|rootkit)`), Category: "Malware", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 90, PolicyType: "security"},
	{ID: "malware-3", Pattern: regexp.MustCompile(`(?i)(?:ddos|botnet|ransomware|cryptojacking)`), Category: "Malware", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 95, PolicyType: "security"},

	// Extremism
	{ID: "extremism-1", Pattern: regexp.MustCompile(`(?i)(?:extremist|radical|terrorist|jihad|hate\s+group)`), Category: "Extremism", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 100, PolicyType: "content"},
	{ID: "extremism-2", Pattern: regexp.MustCompile(`(?i)(?:conspiracy|government\s+coverup|deep\s+state|illuminati)`), Category: "Extremism", Severity: SeverityMedium, Action: ActionWarn, RiskScore: 70, PolicyType: "content"},

	// Phishing
	{ID: "phishing-1", Pattern: regexp.MustCompile(`(?i)(?:your\s+(?:bank|account|password|credit\s*card)\s+(?:is|has\s+been)\s+(?:locked|suspended|compromised))`), Category: "Phishing", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 95, PolicyType: "security"},
	{ID: "phishing-2", Pattern: regexp.MustCompile(`(?i)(?:click\s+(?:here|now)|login\s+(?:here|now)|verify\s+(?:here|now))`), Category: "Phishing", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 90, PolicyType: "security"},
	{ID: "phishing-3", Pattern: regexp.MustCompile(`(?i)(?:https?://\S*(?:bank|paypal|amazon|google|microsoft|apple)\S*)`), Category: "Phishing", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 85, PolicyType: "security"},

	// Fraud
	{ID: "fraud-1", Pattern: regexp.MustCompile(`(?i)(?:send\s+\$\d+|transfer\s+\$\d+|pay\s+\$\d+)`), Category: "Fraud", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 100, PolicyType: "security"},
	{ID: "fraud-2", Pattern: regexp.MustCompile(`(?i)(?:urgent|immediate|asap|emergency)\s+(?:payment|transfer|action)`), Category: "Fraud", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 90, PolicyType: "security"},
	{ID: "fraud-3", Pattern: regexp.MustCompile(`(?i)(?:lottery|winner|prize|inheritance|million\s+dollars)`), Category: "Fraud", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 95, PolicyType: "security"},

	// Technical threats (injection syntax; case-sensitive tokens where the syntax is)
	{ID: "tech-threat-1", Pattern: regexp.MustCompile(`(?i)(?:union\s+select|drop\s+table|insert\s+into|delete\s+from)`), Category: "Technical Threat", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 100, PolicyType: "security"},
	{ID: "tech-threat-2", Pattern: regexp.MustCompile(`(?i)(?:'|"|;|--|/\*|\*/|xp_|sp_)`), Category: "Technical Threat", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 90, PolicyType: "security"},
	{ID: "tech-threat-3", Pattern: regexp.MustCompile(`(?i)(?:<script|javascript:|on\w+\s*=|alert\s*\()`), Category: "Technical Threat", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 95, PolicyType: "security"},
	{ID: "tech-threat-4", Pattern: regexp.MustCompile("(?i)(?:&&|\\|\\||`|;|\\$\\(|eval\\s*\\()"), Category: "Technical Threat", Severity: SeverityHigh, Action: ActionBlock, RiskScore: 100, PolicyType: "security"},

	// Suspicious shapes
	{ID: "suspicious-1", Pattern: regexp.MustCompile(`(?i)\.(?:exe|bat|cmd|com|pif|scr|vbs|js|jar|dll|sh|php|asp|jsp)\b`), Category: "Suspicious", Severity: SeverityMedium, Action: ActionWarn, RiskScore: 50, PolicyType: "security"},
	{ID: "suspicious-2", Pattern: regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]{5,}`), Category: "Suspicious", Severity: SeverityMedium, Action: ActionWarn, RiskScore: 40, PolicyType: "security"},
	{ID: "suspicious-3", Pattern: regexp.MustCompile(`^[\w!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]{20,}$`), Category: "Suspicious", Severity: SeverityMedium, Action: ActionWarn, RiskScore: 30, PolicyType: "security"},
}

// Match returns the first rule in declaration order whose pattern occurs in
// text. Pure function over the static table.
func Match(text string) (*Rule, bool) {
	for i := range table {
		if table[i].Pattern.MatchString(text) {
			return &table[i], true
		}
	}
	return nil, false
}

// All returns the full rule table in declaration order.
func All() []Rule {
	out := make([]Rule, len(table))
	copy(out, table)
	return out
}

// Categories returns the distinct rule categories in declaration order.
func Categories() []string {
	seen := make(map[string]struct{}, len(table))
	out := make([]string, 0, len(table))
	for i := range table {
		if _, ok := seen[table[i].Category]; ok {
			continue
		}
		seen[table[i].Category] = struct{}{}
		out = append(out, table[i].Category)
	}
	return out
}

// ByPolicyType filters the table by policy type, preserving order.
func ByPolicyType(policyType string) []Rule {
	var out []Rule
	for i := range table {
		if table[i].PolicyType == policyType {
			out = append(out, table[i])
		}
	}
	return out
}

// ByCategory filters the table by category, preserving order.
func ByCategory(category string) []Rule {
	var out []Rule
	for i := range table {
		if table[i].Category == category {
			out = append(out, table[i])
		}
	}
	return out
}

// BySeverity filters the table by severity, preserving order.
func BySeverity(sev Severity) []Rule {
	var out []Rule
	for i := range table {
		if table[i].Severity == sev {
			out = append(out, table[i])
		}
	}
	return out
}
