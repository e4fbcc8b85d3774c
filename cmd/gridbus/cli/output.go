// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Styles renders the parts of a bus message for display.
type Styles struct {
	Topic  lipgloss.Style
	Header lipgloss.Style
	Part   lipgloss.Style
	Faint  lipgloss.Style
	Good   lipgloss.Style
	Bad    lipgloss.Style

	// Colored is false when output is plain text.
	Colored bool
}

// NewStyles returns styles for w. Output that is not a terminal, or a
// terminal with NO_COLOR set, gets plain text.
func NewStyles(w io.Writer) Styles {
	renderer := lipgloss.NewRenderer(w, termenv.WithColorCache(true))
	if !isTerminal(w) || os.Getenv("NO_COLOR") != "" {
		renderer.SetColorProfile(termenv.Ascii)
	}
	return stylesFor(renderer)
}

// NewStylesWithProfile returns styles for w rendered with profile,
// whatever w is connected to.
func NewStylesWithProfile(w io.Writer, profile termenv.Profile) Styles {
	renderer := lipgloss.NewRenderer(w)
	renderer.SetColorProfile(profile)
	return stylesFor(renderer)
}

func stylesFor(renderer *lipgloss.Renderer) Styles {
	return Styles{
		Topic:   renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Header:  renderer.NewStyle().Foreground(lipgloss.Color("8")),
		Part:    renderer.NewStyle(),
		Faint:   renderer.NewStyle().Faint(true),
		Good:    renderer.NewStyle().Foreground(lipgloss.Color("10")),
		Bad:     renderer.NewStyle().Foreground(lipgloss.Color("9")),
		Colored: renderer.ColorProfile() != termenv.Ascii,
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// NewCommandLogger returns a logger for command diagnostics: text on a
// terminal, JSON when stderr is redirected.
func NewCommandLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// WriteJSON writes value to w as one line of JSON.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return encoder.Encode(value)
}
