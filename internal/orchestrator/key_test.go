package orchestrator

import "testing"

func TestKeyEncodeDecode(t *testing.T) {
	cases := []Key{
		{Channel: "onebot", RoomID: "12345", ParticipantID: "67890"},
		{Channel: "discord", RoomID: "", ParticipantID: "u1"}, // direct message
	}
	for _, k := range cases {
		got, ok := DecodeKey(k.Encode())
		if !ok || got != k {
			t.Errorf("round trip failed: %v -> %q -> %v (ok=%v)", k, k.Encode(), got, ok)
		}
	}
}

func TestDecodeKeyRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "a|b", "|room|", "a|b|"} {
		if _, ok := DecodeKey(s); ok {
			t.Errorf("DecodeKey(%q) accepted", s)
		}
	}
}

// Masked log form never contains the full participant identity.
func TestKeyMasked(t *testing.T) {
	k := Key{Channel: "onebot", RoomID: "r", ParticipantID: "1234567890"}
	m := k.Masked()
	if m != "onebot|r|12***90" {
		t.Errorf("Masked() = %q", m)
	}

	short := Key{Channel: "onebot", RoomID: "r", ParticipantID: "007"}
	if short.Masked() != "onebot|r|***" {
		t.Errorf("short id not fully masked: %q", short.Masked())
	}
}

func TestParseReportSections(t *testing.T) {
	long, actions := parseReportSections("story here\n" + reportDelimiter + "\ndo the thing")
	if long != "story here" || actions != "do the thing" {
		t.Fatalf("got %q / %q", long, actions)
	}

	long, actions = parseReportSections("only a story")
	if long != "only a story" || actions != "" {
		t.Fatalf("missing delimiter handling: %q / %q", long, actions)
	}
}

func TestReportTitle(t *testing.T) {
	if got := reportTitle("Report", 0, 1); got != "Report" {
		t.Errorf("single chunk title = %q", got)
	}
	if got := reportTitle("Report", 1, 3); got != "Report (2/3)" {
		t.Errorf("multi chunk title = %q", got)
	}
}
