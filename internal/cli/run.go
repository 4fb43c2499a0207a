package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/driftline/activitybus/internal/activity"
	"github.com/driftline/activitybus/internal/bus"
	"github.com/driftline/activitybus/internal/effects"
	"github.com/driftline/activitybus/internal/registry"
	"github.com/driftline/activitybus/internal/rules"
	"github.com/driftline/activitybus/internal/store"
)

// EnvConfig holds run-command defaults taken from the environment.
// Flags override these.
type EnvConfig struct {
	Namespace string `envconfig:"NAMESPACE" default:"https://activitybus.local"`
	Database  string `envconfig:"DB"`
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Namespace string
	Database  string
	Memory    bool
	Rules     []string
	Effects   []string
	Submit    string
}

// RunSummary reports what a run processed.
type RunSummary struct {
	Submitted  int `json:"submitted"`
	Processed  int `json:"processed"`
	Finalized  int `json:"finalized"`
	Tombstoned int `json:"tombstoned"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load rules and effects, submit activities, and drain the queue",
		Long: `Start the bus, load declarative rules and effect bundles, submit the
activities from --submit, and process the queue until it is empty
(including activities spawned by effects along the way).

Environment defaults: ACTIVITYBUS_NAMESPACE, ACTIVITYBUS_DB.

Example:
  activitybus run --memory --rules ./rules --submit batch.json
  activitybus run --db ./bus.db --rules ./rules --effects standard/notes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBus(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Namespace, "namespace", "", "id namespace (default from ACTIVITYBUS_NAMESPACE)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from ACTIVITYBUS_DB)")
	cmd.Flags().BoolVar(&opts.Memory, "memory", false, "use the in-memory store")
	cmd.Flags().StringSliceVar(&opts.Rules, "rules", nil, "rule files or directories")
	cmd.Flags().StringSliceVar(&opts.Effects, "effects", effects.Bundles(), "effect bundles to load")
	cmd.Flags().StringVar(&opts.Submit, "submit", "", "JSON file with an activity or array of activities to submit")

	return cmd
}

func runBus(cmd *cobra.Command, opts *RunOptions) error {
	configureLogging(opts.Verbose)

	var env EnvConfig
	if err := envconfig.Process("activitybus", &env); err != nil {
		return WrapExitError(ExitCommandError, "reading environment", err)
	}
	if opts.Namespace == "" {
		opts.Namespace = env.Namespace
	}
	if opts.Database == "" {
		opts.Database = env.Database
	}

	st, cleanup, err := openStore(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	reg := registry.New()
	descriptors, err := effects.Load(reg, opts.Effects...)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading effects", err)
	}
	slog.Info("effects loaded", "bundles", strings.Join(opts.Effects, ","), "effects", len(descriptors))

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	// Persist effect descriptors for inspection. Registration itself is
	// purely in-memory; this is the durable view.
	for _, d := range descriptors {
		if err := st.Store(ctx, activity.Activity(d.ToMap()), store.CollectionEffects); err != nil {
			return WrapExitError(ExitCommandError, "persisting effect descriptors", err)
		}
	}

	if len(opts.Rules) > 0 {
		loaded, err := rules.Load(opts.Rules...)
		if err != nil {
			return WrapExitError(ExitCommandError, "loading rules", err)
		}
		for _, r := range loaded {
			if err := st.Store(ctx, activity.Activity(r.ToMap()), store.CollectionRules); err != nil {
				return WrapExitError(ExitCommandError, "persisting rules", err)
			}
		}
		slog.Info("rules loaded", "count", len(loaded))
	}

	b := bus.New(st, reg, opts.Namespace)

	summary := RunSummary{}
	if opts.Submit != "" {
		batch, err := readSubmissions(opts.Submit)
		if err != nil {
			return err
		}
		for _, act := range batch {
			if _, err := b.Submit(ctx, act); err != nil {
				return WrapExitError(ExitFailure, "submission rejected", err)
			}
			summary.Submitted++
		}
	}

	for {
		processed, err := b.DispatchNext(ctx, false)
		if err != nil {
			return WrapExitError(ExitCommandError, "dispatch interrupted", err)
		}
		if processed == nil {
			break
		}
		summary.Processed++
		if processed.IsTombstone() {
			summary.Tombstoned++
		} else {
			summary.Finalized++
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	text := fmt.Sprintf("submitted %d, processed %d (%d finalized, %d tombstoned)",
		summary.Submitted, summary.Processed, summary.Finalized, summary.Tombstoned)
	if err := formatter.Success(text, summary); err != nil {
		return err
	}

	if summary.Tombstoned > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d activities degraded to tombstones", summary.Tombstoned))
	}
	return nil
}

func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func openStore(opts *RunOptions) (store.Store, func(), error) {
	if opts.Memory || opts.Database == "" {
		slog.Info("using in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	slog.Info("opening database", "path", opts.Database)
	st, err := store.OpenSQLite(opts.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "opening database", err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			slog.Error("closing database", "error", err)
		}
	}
	return st, cleanup, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func readSubmissions(path string) ([]activity.Activity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "reading submissions", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, WrapExitError(ExitCommandError, "parsing submissions", err)
	}

	switch raw := raw.(type) {
	case map[string]any:
		return []activity.Activity{activity.Activity(raw)}, nil
	case []any:
		var batch []activity.Activity
		for i, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, NewExitError(ExitCommandError, fmt.Sprintf("submission %d is not an object", i))
			}
			batch = append(batch, activity.Activity(m))
		}
		return batch, nil
	}
	return nil, NewExitError(ExitCommandError, "submissions must be an object or an array of objects")
}
