// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the gridbus tool.
//
// A [Command] tree dispatches on the first positional argument, parses
// pflag flags lazily, prints structured help, and suggests the nearest
// command or flag on a typo. [ExitError] lets a command choose its exit
// status without an extra error line. [Styles] renders terminal output
// with lipgloss, degrading to plain text when stdout is not a terminal.
package cli
