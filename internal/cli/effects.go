package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftline/activitybus/internal/effects"
	"github.com/driftline/activitybus/internal/registry"
)

// EffectsOptions holds flags for the effects command.
type EffectsOptions struct {
	*RootOptions
}

// NewEffectsCommand creates the effects command.
func NewEffectsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EffectsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "effects [bundle...]",
		Short: "List effect bundles and the handlers they register",
		Long: `With no arguments, list the available effect bundles. With bundle
names, load them into a scratch registry and list the effect
descriptors they register.

Example:
  activitybus effects
  activitybus effects standard/notes --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listEffects(cmd, opts, args)
		},
	}

	return cmd
}

func listEffects(cmd *cobra.Command, opts *EffectsOptions, bundles []string) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	if len(bundles) == 0 {
		names := effects.Bundles()
		return formatter.Success(strings.Join(names, "\n"), map[string]any{"bundles": names})
	}

	reg := registry.New()
	descriptors, err := effects.Load(reg, bundles...)
	if err != nil {
		if ferr := formatter.Failure(err.Error()); ferr != nil {
			return ferr
		}
		return NewExitError(ExitCommandError, "loading effect bundles")
	}

	var b strings.Builder
	for _, d := range descriptors {
		fmt.Fprintf(&b, "%s (priority %d)\n", d.ID, d.Priority)
	}
	return formatter.Success(strings.TrimRight(b.String(), "\n"), map[string]any{"effects": descriptors})
}
