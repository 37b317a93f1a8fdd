package orchestrator

import (
	"encoding/json"
	"strings"
)

// minConfidence is the engagement threshold for parsed triage decisions.
// Bare YES tokens carry full confidence.
const minConfidence = 0.7

// Decision is the parsed outcome of a triage call.
type Decision struct {
	Engage     bool
	Confidence float64
	Reason     string
}

// ParseDecision parses triage model output strictly: a bare YES/NO token, or a
// single-line JSON object {"decision","confidence","reason"}. Anything else —
// prose, multi-line output, malformed JSON — resolves to "do not engage". The
// conservative bias is deliberate: a noisy model must not start dialogues.
func ParseDecision(raw string) Decision {
	s := strings.TrimSpace(raw)

	switch strings.ToUpper(s) {
	case "YES":
		return Decision{Engage: true, Confidence: 1}
	case "NO":
		return Decision{Confidence: 1}
	}

	if strings.ContainsAny(s, "\r\n") {
		return Decision{}
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return Decision{}
	}

	var parsed struct {
		Decision   string  `json:"decision"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return Decision{}
	}

	d := Decision{Confidence: parsed.Confidence, Reason: parsed.Reason}
	switch strings.ToUpper(strings.TrimSpace(parsed.Decision)) {
	case "YES", "TRUE", "ENGAGE":
		d.Engage = d.Confidence >= minConfidence
	}
	return d
}
