package scan

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/credsweep/credsweep"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fd75f")).Bold(true)
	treeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#f05c07"))
)

var headings = map[credsweep.DetectionType]string{
	credsweep.DetectionDirectoryName: "Directoryname",
	credsweep.DetectionFileName:      "Filename",
	credsweep.DetectionFileContent:   "Filecontent",
}

// detectionOrder returns the detection types of matches in order of first
// appearance.
func detectionOrder(matches []credsweep.Match) []credsweep.DetectionType {
	var order []credsweep.DetectionType
	for _, m := range matches {
		if !slices.Contains(order, m.DetectionType) {
			order = append(order, m.DetectionType)
		}
	}
	return order
}

// PrintReport renders matches as a tree grouped by detection type, followed
// by the total count. Groups appear in the order their first match does.
func PrintReport(w io.Writer, matches []credsweep.Match, noColor bool) error {
	paint := func(s lipgloss.Style, text string) string {
		if noColor {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n\n", paint(headerStyle, "-"+strings.Repeat("=", 14)+"[Results]"+strings.Repeat("=", 14)+"-"))

	for _, kind := range detectionOrder(matches) {
		var group []credsweep.Match
		for _, m := range matches {
			if m.DetectionType == kind {
				group = append(group, m)
			}
		}

		fmt.Fprintf(&b, "%s\n", paint(treeStyle, "┌───["+headings[kind]+"]"))
		if kind != credsweep.DetectionFileContent {
			for i, m := range group {
				branch := "├─"
				if i == len(group)-1 {
					branch = "└─"
				}
				fmt.Fprintf(&b, "%s %s\n", paint(treeStyle, branch), m.Target)
			}
			b.WriteString("\n\n")
			continue
		}

		fmt.Fprintf(&b, "%s\n", paint(treeStyle, "│"))
		for i, m := range group {
			top, rail := "├──", "│"
			if i == len(group)-1 {
				top, rail = "└──", " "
			}
			context := m.Context
			if context == "" {
				context = "None"
			}
			rail = paint(treeStyle, rail)
			fmt.Fprintf(&b, "%s\n", paint(treeStyle, top+"───["+m.Category+"]"))
			fmt.Fprintf(&b, "%s      Pattern: %s\n", rail, m.RuleName)
			fmt.Fprintf(&b, "%s      File:    %s\n", rail, m.Target)
			fmt.Fprintf(&b, "%s      Line:    %d\n", rail, m.Line)
			fmt.Fprintf(&b, "%s      Context: %s\n", rail, context)
			fmt.Fprintf(&b, "%s\n", strings.TrimSpace(rail))
		}
	}

	fmt.Fprintf(&b, "\nTotal results: %d\n", len(matches))
	_, err := io.WriteString(w, b.String())
	return err
}
