package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pengelbrecht/weft/internal/progress"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89B4FA"))
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7F849C")).Bold(true)
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	mergingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#CBA6F7"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#7F849C"))
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return "Cancelling run...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderTable())
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(m.help.View(m.keys)))
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderHeader() string {
	counts := make(map[progress.Status]int)
	for _, e := range m.entries {
		counts[e.Status]++
	}
	summary := fmt.Sprintf("%d running  %d merging  %d done  %d failed  %s",
		counts[progress.StatusRunning],
		counts[progress.StatusMerging],
		counts[progress.StatusCompleted],
		counts[progress.StatusFailed],
		time.Since(m.start).Round(time.Second),
	)
	name := m.project
	if name == "" {
		name = "weft"
	}
	return titleStyle.Render(name) + "  " + footerStyle.Render(summary)
}

func (m Model) renderTable() string {
	if len(m.entries) == 0 {
		return pendingStyle.Render("waiting for tasks...")
	}

	idW, titleW := 4, 5
	for _, e := range m.entries {
		if len(e.TaskID) > idW {
			idW = len(e.TaskID)
		}
		if len(e.Title) > titleW {
			titleW = len(e.Title)
		}
	}
	if max := m.width / 3; max > 10 && titleW > max {
		titleW = max
	}

	var rows []string
	rows = append(rows, headerStyle.Render(
		fmt.Sprintf("   %-*s  %-*s  %9s  %8s", idW, "ID", titleW, "TITLE", "ELAPSED", "OUTPUT")))
	for _, e := range m.entries {
		rows = append(rows, m.renderRow(e, idW, titleW))
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderRow(e progress.Entry, idW, titleW int) string {
	icon, style := m.statusIcon(e.Status)

	// Truncate by runes; a byte slice could split a multibyte character.
	title := e.Title
	if runes := []rune(title); len(runes) > titleW {
		title = string(runes[:titleW-1]) + "…"
	}

	elapsed := "-"
	if !e.Started.IsZero() {
		elapsed = e.Elapsed().Round(time.Second).String()
	}
	output := "-"
	if e.Bytes > 0 {
		output = formatBytes(e.Bytes)
	}

	row := fmt.Sprintf("%s  %-*s  %-*s  %9s  %8s", icon, idW, e.TaskID, titleW, title, elapsed, output)
	if e.Err != nil {
		row += "  " + failedStyle.Render(e.Err.Error())
	}
	return style.Render(row)
}

func (m Model) statusIcon(s progress.Status) (string, lipgloss.Style) {
	switch s {
	case progress.StatusRunning:
		return m.spinner.View(), runningStyle
	case progress.StatusMerging:
		return "⇄", mergingStyle
	case progress.StatusCompleted:
		return "✓", completedStyle
	case progress.StatusFailed:
		return "✗", failedStyle
	default:
		return "·", pendingStyle
	}
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fkB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
