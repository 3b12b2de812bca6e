// Package browser implements an interactive terminal browser for ranked
// search/route results: a lime-green bubbletea theme built around a
// static result list instead of a live indexing progress model.
package browser

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const (
	colorLime     = "154"
	colorWhite    = "255"
	colorGray     = "245"
	colorDarkGray = "238"
	colorYellow   = "220"
	colorRed      = "196"
)

const scoreBarWidth = 12

// newScoreBar builds the bubbles/progress bar used to render a hit's
// calibrated final score, styled with a solid-fill lime accent.
func newScoreBar() progress.Model {
	return progress.New(
		progress.WithSolidFill(colorLime),
		progress.WithWidth(scoreBarWidth),
		progress.WithoutPercentage(),
	)
}

func scoreBar(bar progress.Model, score float64) string {
	return bar.ViewAs(score)
}

type styles struct {
	header     lipgloss.Style
	selected   lipgloss.Style
	dim        lipgloss.Style
	confidence map[string]lipgloss.Style
	help       lipgloss.Style
	scoreBar   progress.Model
}

func defaultStyles() styles {
	return styles{
		header:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorWhite)),
		selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorLime)),
		dim:      lipgloss.NewStyle().Foreground(lipgloss.Color(colorDarkGray)),
		confidence: map[string]lipgloss.Style{
			"high":   lipgloss.NewStyle().Foreground(lipgloss.Color(colorLime)),
			"medium": lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
			"low":    lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		},
		help:     lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
		scoreBar: newScoreBar(),
	}
}
