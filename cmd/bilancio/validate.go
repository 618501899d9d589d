package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"bilancio/internal/log"
	"bilancio/internal/username"
)

// errInvalidUsername makes the process exit 1 without an extra message;
// the findings have already been printed.
var errInvalidUsername = errors.New("invalid username")

var (
	colorSuccess = lipgloss.Color("#22C55E")
	colorDanger  = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")

	styleValid   = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleInvalid = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	styleReason  = lipgloss.NewStyle().Foreground(colorMuted).PaddingLeft(2)
)

var validateCmd = &cobra.Command{
	Use:   "validate [username...]",
	Short: "Check usernames against the signup rules",
	Long: `Check each username against the signup rules and print every rule it breaks.
With no arguments, one username is read per line from standard input.
Surrounding whitespace is trimmed; blank lines are skipped.
The exit status is 1 when any username is invalid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(log.ComponentCLI)
		var (
			ok  bool
			err error
		)
		if len(args) > 0 {
			ok = validateAll(cmd.OutOrStdout(), args)
		} else {
			ok, err = validateLines(cmd.OutOrStdout(), cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read usernames: %w", err)
			}
		}
		logger.Debug("Validation finished", log.FieldOperation, log.OpValidate, log.FieldValid, ok)
		if !ok {
			return errInvalidUsername
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateAll prints a verdict for every candidate and reports whether all
// of them passed.
func validateAll(w io.Writer, candidates []string) bool {
	allValid := true
	for _, c := range candidates {
		if !report(w, strings.TrimSpace(c)) {
			allValid = false
		}
	}
	return allValid
}

func validateLines(w io.Writer, r io.Reader) (bool, error) {
	allValid := true
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !report(w, line) {
			allValid = false
		}
	}
	return allValid, sc.Err()
}

func report(w io.Writer, candidate string) bool {
	res := username.Validate(candidate)
	if res.Valid {
		fmt.Fprintln(w, styleValid.Render("✓ "+fmt.Sprintf("%q", candidate)))
		return true
	}
	fmt.Fprintln(w, styleInvalid.Render("✗ "+fmt.Sprintf("%q", candidate)))
	for _, msg := range res.Errors {
		fmt.Fprintln(w, styleReason.Render(msg))
	}
	return false
}
