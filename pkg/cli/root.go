package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/TechXTT/dal"
	"github.com/TechXTT/dal/internal/logger"
	"github.com/TechXTT/dal/internal/plugin"
	"github.com/TechXTT/dal/pkg/config"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "v0.1.0"

func help() string {
	return `dal runs statements against a PostgreSQL database through the dal
access layer: placeholder checks, soft deletes and transactions included.
Examples:
  dal exec "INSERT INTO brands (name) VALUES ($1) RETURNING id" Audi
  dal exec --soft-delete --user-name ana "DELETE FROM brands WHERE id = $1" 7
  dal query "SELECT id, name FROM brands WHERE name = $1" Audi
  dal script --dir scripts`
}

type app struct {
	configPath string
	dsn        string
	softDelete bool
	metrics    bool

	opts     []dal.Option
	registry *prometheus.Registry
}

// NewVersionCmd builds the `version` command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(Version)
		},
	}
}

// NewRootCmd builds the top-level `dal` command. opts are applied to every
// session the commands open.
func NewRootCmd(opts ...dal.Option) *cobra.Command {
	a := &app{opts: opts, registry: prometheus.NewRegistry()}

	root := &cobra.Command{
		Use:           "dal",
		Short:         "dal: statements, transactions and soft deletes from the shell",
		Long:          help(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.metrics {
				return a.printMetrics(cmd)
			}
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.dsn, "dsn", "", "database DSN (overrides config and DATABASE_URL)")
	pf.BoolVar(&a.softDelete, "soft-delete", false, "rewrite DELETE statements into soft deletes")
	pf.BoolVar(&a.metrics, "metrics", false, "print statement metrics when the command finishes")

	root.AddCommand(newExecCmd(a))
	root.AddCommand(newQueryCmd(a))
	root.AddCommand(newScriptCmd(a))
	root.AddCommand(NewVersionCmd())
	return root
}

// openSession loads configuration, applies the global flags and connects.
func (a *app) openSession(cmd *cobra.Command) (*dal.Session, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.dsn != "" {
		cfg.Database.DSN = a.dsn
	}
	if cmd.Flags().Changed("soft-delete") {
		cfg.SoftDelete.Enabled = a.softDelete
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	metrics, err := plugin.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}

	opts := []dal.Option{
		dal.WithLogger(log),
		dal.WithHooks(metrics, plugin.NewTracing(nil, cfg.Database.Driver)),
	}
	return dal.Open(cmd.Context(), cfg, append(opts, a.opts...)...)
}

// printMetrics writes one line per series gathered during the command.
func (a *app) printMetrics(cmd *cobra.Command) error {
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	out := cmd.OutOrStdout()
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			sort.Strings(labels)

			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			}
			fmt.Fprintf(out, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
	return nil
}

// values turns positional CLI arguments into statement values.
func values(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
