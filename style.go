package main

import "github.com/charmbracelet/lipgloss"

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575")).
		Render

	failure = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#D74E6F", Dark: "#FE5F86"}).
		Render

	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render
)
