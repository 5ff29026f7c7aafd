package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return subtleStyle.Render("  Starting…")
	}

	w := m.width
	if w < 24 {
		w = 24
	}

	header := m.renderHeader(w)
	chat := chatBorder.Width(w - 2).Render(m.viewport.View())
	input := inputBorder.Width(w - 2).Render(m.renderInput())
	return header + "\n" + chat + "\n" + input + "\n" + m.renderStatusBar(w)
}

func (m Model) renderHeader(w int) string {
	info := m.conv.BackendName()
	if m.opts.Model != "" {
		info += " · " + m.opts.Model
	}
	title := "💬 Parley"
	info = runewidth.Truncate(info, w-runewidth.StringWidth(title)-4, "…")
	return titleStyle.Render(title) + subtleStyle.Render("  "+info)
}

func (m Model) renderInput() string {
	if !m.busy {
		return m.input.View()
	}
	elapsed := time.Since(m.started).Round(time.Second)
	return m.spinner.View() + " " + stateStyle(m.state).Render(stateLabel(m.state)) +
		subtleStyle.Render(fmt.Sprintf("  %s", elapsed))
}

func (m Model) renderStatusBar(w int) string {
	left := "● " + stateLabel(m.state)
	hint := "esc quit"
	if m.busy {
		hint = "esc cancel"
	}
	right := fmt.Sprintf("turn %d · pgup/pgdn scroll · %s", m.turns, hint)

	avail := w - 2 // padding
	leftW := runewidth.StringWidth(left)
	gap := avail - leftW - runewidth.StringWidth(right)
	if gap < 1 {
		room := avail - leftW - 1
		if room < 0 {
			room = 0
		}
		right = runewidth.Truncate(right, room, "…")
		gap = 1
	}

	line := stateStyle(m.state).Render(left) + strings.Repeat(" ", gap) + subtleStyle.Render(right)
	return statusBar.Render(line)
}

// renderConversation lays out every entry plus the reply being streamed.
func (m *Model) renderConversation() string {
	width := m.viewport.Width
	if len(m.entries) == 0 && !m.busy {
		return subtleStyle.Render("Say hello. Type /quit or press esc to leave.")
	}

	var b strings.Builder
	for i := range m.entries {
		e := &m.entries[i]
		switch e.kind {
		case entryUser:
			b.WriteString(userLabelStyle.Render("You") + "\n")
			b.WriteString(textStyle.Width(width).Render(e.text) + "\n\n")
		case entryAssistant:
			if e.rendered == "" {
				e.rendered = m.markdown(e.text)
			}
			b.WriteString(assistantLabelStyle.Render(m.conv.BackendName()) + "\n")
			b.WriteString(e.rendered + "\n\n")
		case entryTool:
			b.WriteString(toolCallStyle.Render("→ "+e.text) + "\n")
		case entryResult, entryToolError:
			style := toolResultStyle
			if e.kind == entryToolError {
				style = errorStyle
			}
			for _, l := range resultLines(e.text) {
				b.WriteString(style.Render("  "+l) + "\n")
			}
		case entryError:
			b.WriteString(errorStyle.Render("✗ "+e.text) + "\n\n")
		case entryInfo:
			b.WriteString(subtleStyle.Render(e.text) + "\n")
		}
	}

	if m.busy && m.partial != "" {
		b.WriteString(assistantLabelStyle.Render(m.conv.BackendName()) + "\n")
		b.WriteString(textStyle.Width(width).Render(m.partial))
	}
	return strings.TrimRight(b.String(), "\n")
}

// resultLines splits a tool result for display, summarizing long ones.
func resultLines(result string) []string {
	var lines []string
	for _, l := range strings.Split(result, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > 8 {
		more := len(lines) - 6
		lines = append(lines[:6], fmt.Sprintf("... (%d more lines)", more))
	}
	return lines
}
