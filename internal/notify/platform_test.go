package notify

import (
	"testing"
	"time"
)

func TestDetectPlatformFirstMatchWins(t *testing.T) {
	cases := []struct {
		url  string
		want Platform
	}{
		{"https://hooks.slack.com/services/T000/B000/XXX", PlatformSlack},
		{"https://example.webhook.office.com/webhookb2/abc", PlatformTeams},
		{"https://outlook.office.com/webhook/abc", PlatformTeams},
		{"https://discord.com/api/webhooks/123/token", PlatformDiscord},
		{"https://internal.example.com/hooks/notify", PlatformGeneric},
		{"", PlatformGeneric},
	}
	for _, tc := range cases {
		if got := DetectPlatform(tc.url); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.url, tc.want, got)
		}
	}
}

func TestBuildPayloadShapes(t *testing.T) {
	n := Notification{
		Title:     "Control failed",
		Message:   "CC1.1 regressed",
		Severity:  SeverityHigh,
		Category:  "compliance",
		Timestamp: time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	}

	slack := BuildPayload(PlatformSlack, n)
	attachments, ok := slack["attachments"].([]map[string]any)
	if !ok || len(attachments) != 1 {
		t.Fatalf("expected slack attachments, got %v", slack)
	}
	if attachments[0]["title"] != n.Title {
		t.Fatalf("unexpected slack attachment %v", attachments[0])
	}

	discord := BuildPayload(PlatformDiscord, n)
	embeds, ok := discord["embeds"].([]map[string]any)
	if !ok || len(embeds) != 1 || embeds[0]["description"] != n.Message {
		t.Fatalf("expected discord embeds, got %v", discord)
	}

	teams := BuildPayload(PlatformTeams, n)
	if teams["@type"] != "MessageCard" {
		t.Fatalf("expected teams MessageCard, got %v", teams)
	}
	sections, ok := teams["sections"].([]map[string]string)
	if !ok || len(sections) != 1 || sections[0]["activityTitle"] != n.Title {
		t.Fatalf("unexpected teams sections %v", teams)
	}

	generic := BuildPayload(PlatformGeneric, n)
	if generic["title"] != n.Title || generic["message"] != n.Message || generic["severity"] != "high" {
		t.Fatalf("unexpected generic payload %v", generic)
	}
}

func TestParseSeverity(t *testing.T) {
	cases := []struct {
		in   string
		want Severity
		ok   bool
	}{
		{"all", SeverityAll, true},
		{"", SeverityAll, true},
		{"LOW", SeverityLow, true},
		{"medium", SeverityMedium, true},
		{"High", SeverityHigh, true},
		{"critical", SeverityCritical, true},
		{"fatal", SeverityAll, false},
	}
	for _, tc := range cases {
		got, err := ParseSeverity(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: expected %v, got %v err %v", tc.in, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%q: expected error", tc.in)
		}
	}
}

func TestQuietHoursContains(t *testing.T) {
	at := func(clock string) time.Time {
		parsed, err := time.Parse("15:04", clock)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return parsed
	}

	wrap := QuietHours{Start: "22:00", End: "08:00"}
	for clock, want := range map[string]bool{
		"22:00": true,
		"23:59": true,
		"00:00": true,
		"07:59": true,
		"08:00": false,
		"12:00": false,
		"21:59": false,
	} {
		got, err := wrap.Contains(at(clock))
		if err != nil {
			t.Fatalf("%s: %v", clock, err)
		}
		if got != want {
			t.Fatalf("%s: expected %v, got %v", clock, want, got)
		}
	}

	sameDay := QuietHours{Start: "09:00", End: "17:00"}
	if in, _ := sameDay.Contains(at("12:00")); !in {
		t.Fatalf("expected 12:00 inside 09:00-17:00")
	}
	if in, _ := sameDay.Contains(at("17:00")); in {
		t.Fatalf("expected end bound exclusive")
	}

	degenerate := QuietHours{Start: "10:00", End: "10:00"}
	if in, _ := degenerate.Contains(at("10:00")); in {
		t.Fatalf("expected empty window to admit everything")
	}

	broken := QuietHours{Start: "25:00", End: "08:00"}
	if _, err := broken.Contains(at("10:00")); err == nil {
		t.Fatalf("expected invalid clock error")
	}
}
