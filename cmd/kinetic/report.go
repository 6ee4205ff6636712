package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/kinetic/pkg/flows"
)

var (
	mintGreen = lipgloss.Color("#A8E6CF") // passed
	salmonRed = lipgloss.Color("203")     // failed
	mutedGray = lipgloss.Color("#6B7280") // secondary text

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1)

	passStyle = lipgloss.NewStyle().Foreground(mintGreen).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(salmonRed).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(mutedGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonRed).
			PaddingLeft(4)
)

// reportInfo is the run context printed above the results.
type reportInfo struct {
	RunID   string
	BaseURL string
	Reused  bool
	LogPath string
}

// renderReport formats flow results as a bordered summary box.
func renderReport(info reportInfo, results []flows.Result) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Kinetic UI run " + info.RunID))
	b.WriteString("\n")

	session := "fresh login"
	if info.Reused {
		session = "reused persisted state"
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("target:  %s", info.BaseURL)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("session: %s", session)))
	b.WriteString("\n\n")

	passed := 0
	for _, r := range results {
		status := failStyle.Render("FAIL")
		if r.Passed() {
			status = passStyle.Render("PASS")
			passed++
		}
		fmt.Fprintf(&b, "%s  %-18s %s\n", status, r.Flow, dimStyle.Render(r.Duration.Round(time.Millisecond).String()))
		if r.Err != nil {
			b.WriteString(errorStyle.Render(r.Err.Error()))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("%d/%d flows passed", passed, len(results))
	if passed == len(results) {
		b.WriteString(passStyle.Render(summary))
	} else {
		b.WriteString(failStyle.Render(summary))
	}

	if info.LogPath != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("log: " + info.LogPath))
	}

	borderColor := mintGreen
	if passed != len(results) {
		borderColor = salmonRed
	}
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1)

	return boxStyle.Render(b.String())
}

// allPassed reports whether every flow succeeded.
func allPassed(results []flows.Result) bool {
	for _, r := range results {
		if !r.Passed() {
			return false
		}
	}
	return true
}
