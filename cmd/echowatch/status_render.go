package main

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

var statusStyles = map[statusKind]struct{ label, color string }{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

// paint wraps value in the colour for kind when colorize is set.
func paint(kind statusKind, value string, colorize bool) string {
	if !colorize {
		return value
	}
	return statusStyles[kind].color + value + ansiReset
}

func renderStatusCell(kind statusKind, colorize bool) string {
	return paint(kind, statusStyles[kind].label, colorize)
}

// severityKind buckets a batch severity: at or above the alert threshold is an
// error, at or above half of it a warning.
func severityKind(severity, threshold float64) statusKind {
	switch {
	case severity >= threshold:
		return statusError
	case severity >= threshold/2:
		return statusWarn
	default:
		return statusOK
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(line))
	return []string{paint(statusInfo, line, colorize), paint(statusInfo, rule, colorize)}
}

func shouldColorize(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
