package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftline/activitybus/internal/rules"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// RuleReport describes one validated rule.
type RuleReport struct {
	ID       string   `json:"id"`
	Priority int      `json:"priority"`
	Effects  []string `json:"effects"`
}

// ValidateReport is the validate command's output payload.
type ValidateReport struct {
	Rules []RuleReport `json:"rules"`
	Error string       `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Validate rule definition files",
		Long: `Load and validate declarative rule files without starting the bus.

Example:
  activitybus validate ./rules
  activitybus validate rules/notes.yaml rules/audit.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateRules(cmd, opts, args)
		},
	}

	return cmd
}

func validateRules(cmd *cobra.Command, opts *ValidateOptions, paths []string) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	loaded, err := rules.Load(paths...)

	report := ValidateReport{}
	for _, r := range loaded {
		report.Rules = append(report.Rules, RuleReport{
			ID:       r.ID,
			Priority: r.Priority,
			Effects:  r.Effect,
		})
	}

	if err != nil {
		report.Error = err.Error()
		if ferr := formatter.Failure(err.Error()); ferr != nil {
			return ferr
		}
		return NewExitError(ExitFailure, "rule validation failed")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d rules valid\n", len(report.Rules))
	for _, r := range report.Rules {
		fmt.Fprintf(&b, "  %s (priority %d): %s\n", r.ID, r.Priority, strings.Join(r.Effects, ", "))
	}
	return formatter.Success(strings.TrimRight(b.String(), "\n"), report)
}
