package commands

import (
	"strings"
	"testing"
)

type fakeUsage struct{}

func (fakeUsage) UsageTotals() map[string]int {
	return map[string]int{"input_tokens": 100, "output_tokens": 40, "total_tokens": 140}
}

func (fakeUsage) LastUsage() map[string]int {
	return map[string]int{"input_tokens": 10, "output_tokens": 4, "total_tokens": 14}
}

type fakeWatchers struct {
	blocks []string
}

func (f fakeWatchers) DescribeWatchers() []string { return f.blocks }

func TestProcessor_IsCommand(t *testing.T) {
	p := NewProcessor("v0.1.0", nil, nil)
	cases := []struct {
		in   string
		want bool
	}{
		{"/help", true},
		{"  /version  ", true},
		{"hello there", false},
		{"what does /help do?", false},
	}
	for _, tc := range cases {
		if got := p.IsCommand(tc.in); got != tc.want {
			t.Errorf("IsCommand(%q) = %t, want %t", tc.in, got, tc.want)
		}
	}
}

func TestProcessor_HelpAndVersion(t *testing.T) {
	p := NewProcessor("Krishna v0.1.0", nil, nil)

	help := p.Process("/help")
	for _, want := range []string{"/help", "/version", "/usage", "/watchers", "/exit"} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q", want)
		}
	}

	if got := p.Process("/version"); got != "Krishna v0.1.0" {
		t.Errorf("version = %q", got)
	}
	// Command names are case-insensitive.
	if got := p.Process("/VERSION"); got != "Krishna v0.1.0" {
		t.Errorf("uppercase version = %q", got)
	}
}

func TestProcessor_Usage(t *testing.T) {
	p := NewProcessor("v", fakeUsage{}, nil)
	out := p.Process("/usage")
	if !strings.Contains(out, "input 100, output 40, total 140") {
		t.Errorf("usage output = %q", out)
	}
	if !strings.Contains(out, "input 10, output 4, total 14") {
		t.Errorf("usage output missing last call: %q", out)
	}

	bare := NewProcessor("v", nil, nil)
	if out := bare.Process("/usage"); out != "Usage tracking is not available." {
		t.Errorf("bare usage = %q", out)
	}
}

func TestProcessor_Watchers(t *testing.T) {
	p := NewProcessor("v", nil, fakeWatchers{})
	if out := p.Process("/watchers"); out != "No active file watchers" {
		t.Errorf("empty watchers = %q", out)
	}

	p = NewProcessor("v", nil, fakeWatchers{blocks: []string{"**w-1** - 🟢 Active"}})
	out := p.Process("/watchers")
	if !strings.Contains(out, "Active File Watchers:") || !strings.Contains(out, "w-1") {
		t.Errorf("watchers output = %q", out)
	}
}

func TestProcessor_UnknownAndEmpty(t *testing.T) {
	p := NewProcessor("v", nil, nil)
	out := p.Process("/frobnicate now")
	if out != "Command not found: /frobnicate. Type '/help' for available commands." {
		t.Errorf("unknown command = %q", out)
	}
	if out := p.Process("   "); out != "" {
		t.Errorf("empty input = %q", out)
	}
}

func TestProcessor_Register(t *testing.T) {
	p := NewProcessor("v", nil, nil)
	p.Register("/echo", func(args string) string { return "echo: " + args })
	if out := p.Process("/echo hello world"); out != "echo: hello world" {
		t.Errorf("registered command = %q", out)
	}
}
