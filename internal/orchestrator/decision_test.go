package orchestrator

import "testing"

// Strict parsing: exactly one line of JSON or a bare token; everything else
// resolves to "do not engage".
func TestParseDecision(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		engage bool
	}{
		{"bare yes", "YES", true},
		{"bare yes lowercase", "yes", true},
		{"bare no", "NO", false},
		{"bare yes padded", "  YES\n", true},
		{"json yes high confidence", `{"decision":"yes","confidence":0.9,"reason":"asked for help"}`, true},
		{"json engage keyword", `{"decision":"engage","confidence":0.8,"reason":"stuck"}`, true},
		{"json yes low confidence", `{"decision":"yes","confidence":0.5,"reason":"maybe"}`, false},
		{"json no", `{"decision":"no","confidence":0.95,"reason":"casual chat"}`, false},
		{"prose around json", `Sure! {"decision":"yes","confidence":0.9,"reason":"x"}`, false},
		{"multi-line output", "{\"decision\":\"yes\",\n\"confidence\":0.9}", false},
		{"markdown fence", "```json\n{\"decision\":\"yes\",\"confidence\":0.9}\n```", false},
		{"malformed json", `{"decision":"yes","confidence":}`, false},
		{"plain prose", "I think the user needs help here.", false},
		{"empty", "", false},
		{"yes embedded in prose", "yes, definitely engage", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ParseDecision(tc.raw)
			if d.Engage != tc.engage {
				t.Errorf("ParseDecision(%q).Engage = %v, want %v", tc.raw, d.Engage, tc.engage)
			}
		})
	}
}

// Bare tokens carry full confidence; parsed JSON keeps the model's value.
func TestParseDecisionConfidence(t *testing.T) {
	if d := ParseDecision("YES"); d.Confidence != 1 {
		t.Errorf("bare YES confidence = %v", d.Confidence)
	}
	if d := ParseDecision(`{"decision":"no","confidence":0.42,"reason":"r"}`); d.Confidence != 0.42 {
		t.Errorf("json confidence = %v", d.Confidence)
	}
}
