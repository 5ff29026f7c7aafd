package tui

import (
	"log"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestRouteLine(t *testing.T) {
	tests := []struct {
		line string
		want tea.Msg
	}{
		{
			`🔧 Tool: getTicketPrice {"destinationCity":"London"}`,
			ToolCallMsg{Name: "getTicketPrice", Input: `{"destinationCity":"London"}`},
		},
		{"🔧 Tool: now", ToolCallMsg{Name: "now"}},
		{"✓ Result: $799", ToolResultMsg{Result: "$799"}},
		{"⚠ tool getTicketPrice failed: boom", ToolResultMsg{Result: "tool getTicketPrice failed: boom", IsError: true}},
		{"⚠ LLM call failed: busy, retrying in 1s (attempt 1/2)", LogMsg{Text: "⚠ LLM call failed: busy, retrying in 1s (attempt 1/2)"}},
		{"plain line", LogMsg{Text: "plain line"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := routeLine(tt.line); got != tt.want {
				t.Errorf("routeLine(%q) = %#v, want %#v", tt.line, got, tt.want)
			}
		})
	}
}

func TestStripLogPrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2026/02/14 20:30:59 ✓ Result: ok", "✓ Result: ok"},
		{"2026/02/14 20:30:59.123456 ✓ Result: ok", "✓ Result: ok"},
		{"[parley] 2026/02/14 20:30:59 hello", "hello"},
		{"  bare  ", "bare"},
	}
	for _, tt := range tests {
		if got := stripLogPrefix(tt.in); got != tt.want {
			t.Errorf("stripLogPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogWriterBuffersPartialLines(t *testing.T) {
	var got []tea.Msg
	w := newLogWriter(func(msg tea.Msg) { got = append(got, msg) })

	w.Write([]byte("🔧 Tool: getTick"))
	if len(got) != 0 {
		t.Fatalf("partial line should be buffered, got %v", got)
	}
	w.Write([]byte("etPrice {}\n\n✓ Result: $899\n"))

	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %#v", got)
	}
	if call, ok := got[0].(ToolCallMsg); !ok || call.Name != "getTicketPrice" || call.Input != "{}" {
		t.Errorf("unexpected first event %#v", got[0])
	}
	if res, ok := got[1].(ToolResultMsg); !ok || res.Result != "$899" {
		t.Errorf("unexpected second event %#v", got[1])
	}
}

func TestLogWriterWithLogger(t *testing.T) {
	var got []tea.Msg
	logger := log.New(newLogWriter(func(msg tea.Msg) { got = append(got, msg) }), "", log.LstdFlags)
	logger.Printf("✓ Result: %s", "$1400")

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %#v", got)
	}
	if res, ok := got[0].(ToolResultMsg); !ok || res.Result != "$1400" {
		t.Errorf("log prefix should be stripped, got %#v", got[0])
	}
}
