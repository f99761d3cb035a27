// Package printer writes coloured CLI output. Set NO_COLOR to disable colours.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dyluth/tally/pkg/fulfillment"
	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Print(msg)
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Printf(format, a...)
}

// Warning prints a warning message in yellow to stderr
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(os.Stderr, msg)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Printf("→ %s", fmt.Sprintf(format, a...))
}

// Error prints a formatted error with title, explanation and suggestions to
// stderr and returns a plain error carrying only the title, for Cobra.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with a block of key/value details, printed in key order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	writeError(os.Stderr, title, explanation, context, suggestions)
	return fmt.Errorf("%s", title)
}

func writeError(w io.Writer, title, explanation string, context map[string]string, suggestions []string) {
	red.Fprintf(w, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(w, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Fprintf(w, "\n")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(w, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(w, "\nEither:\n")
		for i, suggestion := range suggestions {
			fmt.Fprintf(w, "  %d. %s\n", i+1, suggestion)
		}
	}
}

// Status renders a checklist status padded to width, coloured by lifecycle stage.
// Padding happens before colouring so table columns stay aligned.
func Status(status fulfillment.Status, width int) string {
	text := fmt.Sprintf("%-*s", width, status)
	switch status {
	case fulfillment.StatusDraft:
		return faint.Sprint(text)
	case fulfillment.StatusConfirmed:
		return cyan.Sprint(text)
	case fulfillment.StatusLocked:
		return green.Sprint(text)
	case fulfillment.StatusModificationRequested:
		return yellow.Sprint(text)
	default:
		return text
	}
}

// Kind renders a domain error kind, red for scan rejections and yellow otherwise.
func Kind(kind fulfillment.Kind) string {
	if kind == "" {
		return ""
	}
	switch kind {
	case fulfillment.KindUnknownCode, fulfillment.KindDuplicateScan, fulfillment.KindNotScanning:
		return red.Sprint(string(kind))
	default:
		return yellow.Sprint(string(kind))
	}
}
