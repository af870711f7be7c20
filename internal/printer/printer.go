package printer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dyluth/tessera/pkg/canvas"
	"github.com/fatih/color"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	// Color definitions
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)

	// stdout and stderr are swapped out by tests.
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Success prints a success message in green with a checkmark prefix
func Success(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(stdout, msg)
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(stdout, format, a...)
}

// Warning prints a warning message in yellow with a warning emoji prefix
func Warning(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(stdout, msg)
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Fprintf(stdout, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a formatted error with title, explanation, and suggestions to
// stderr and returns a simple error for Cobra.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error plus key/value context lines, printed in key order.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(stderr, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for key := range context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(stderr, "\n")
		for _, key := range keys {
			fmt.Fprintf(stderr, "  %s: %s\n", key, context[key])
		}
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return &printedError{title: title}
}

// printedError is returned once an error has been rendered to stderr.
type printedError struct {
	title string
}

func (e *printedError) Error() string {
	return e.title
}

// IsPrinted reports whether err was already rendered by this package.
func IsPrinted(err error) bool {
	var p *printedError
	return errors.As(err, &p)
}

// CanvasError renders a canvas error with a title and suggestions chosen by
// its code. Errors without a canvas code are printed as-is.
func CanvasError(err error, context map[string]string) error {
	var ce *canvas.Error
	if !errors.As(err, &ce) {
		return ErrorWithContext("Operation failed", err.Error(), context, nil)
	}

	var suggestions []string
	switch {
	case errors.Is(err, canvas.ErrCooldownActive):
		suggestions = []string{"Wait for the cooldown window to pass and retry"}
	case errors.Is(err, canvas.ErrWrongTier):
		suggestions = []string{
			"Retry with --tier fast while the resource is delegated",
			"Commit the resource back: tessera commit <resource>",
		}
	case errors.Is(err, canvas.ErrInvalidAuth):
		suggestions = []string{"Bind a session for this key first: tessera session bind"}
	case errors.Is(err, canvas.ErrNotFound):
		suggestions = []string{"Create the record first (tessera session bind / tessera shard create)"}
	case errors.Is(err, canvas.ErrNotDelegated):
		suggestions = []string{"Delegate the resource first: tessera delegate <resource>"}
	}

	title := fmt.Sprintf("%s (%s)", ce.Code, ce.Kind)
	return ErrorWithContext(title, err.Error(), context, suggestions)
}

// Println prints a plain message (for output that doesn't need coloring)
func Println(a ...any) {
	fmt.Fprintln(stdout, a...)
}

// Printf prints a plain formatted message (for output that doesn't need coloring)
func Printf(format string, a ...any) {
	fmt.Fprintf(stdout, format, a...)
}
