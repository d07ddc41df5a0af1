// Package cli implements the etlbranching command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"etlbranching/internal/app"
	"etlbranching/internal/config"
	"etlbranching/internal/domain"
	"etlbranching/internal/telemetry"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
	logFormat  string
	jsonOutput bool
}

// env builds what commands need from the global flags.
type env struct {
	cmd   *cobra.Command
	flags *globalFlags
}

// config layers the flags over the file and environment.
func (e *env) config() (*config.Config, error) {
	cfg, err := config.Load(e.flags.configPath)
	if err != nil {
		return nil, err
	}
	pf := e.cmd.Flags()
	if pf.Changed("data-dir") {
		cfg.DataDir = e.flags.dataDir
	}
	if pf.Changed("log-level") {
		cfg.LogLevel = e.flags.logLevel
	}
	if pf.Changed("log-format") {
		cfg.LogFormat = e.flags.logFormat
	}
	return cfg, cfg.Validate()
}

// logger writes to stderr so stdout stays clean for data and MCP.
func (e *env) logger(cfg *config.Config) *slog.Logger {
	return telemetry.NewLogger(e.cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
}

func (e *env) output() *Output {
	return NewOutput(e.flags.jsonOutput, e.cmd.OutOrStdout(), e.cmd.ErrOrStderr())
}

// open loads the config and wires an App. The caller closes it.
func (e *env) open() (*app.App, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, e.logger(cfg))
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "etlbranching",
		Short:         "Branching ETL pipeline: Kaggle dataset -> staged CSV -> table",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file (default $"+config.EnvConfigFile+")")
	pf.StringVar(&flags.dataDir, "data-dir", config.DefaultDataDir, "Directory for staged CSVs and SQLite stores")
	pf.StringVar(&flags.logLevel, "log-level", config.DefaultLogLevel, "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&flags.logFormat, "log-format", config.DefaultLogFormat, "Log format (text, json)")
	pf.BoolVar(&flags.jsonOutput, "json", false, "Output in JSON format")

	envFn := func(cmd *cobra.Command) *env { return &env{cmd: cmd, flags: flags} }

	root.AddCommand(
		newRunCmd(envFn),
		newExtractCmd(envFn),
		newLoadCmd(envFn),
		newBranchCmd(envFn),
		newRunsCmd(envFn),
		newDatasetsCmd(envFn),
		newServeCmd(envFn),
		newMCPCmd(envFn),
	)
	return root
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func runRow(r *domain.DagRun) []string {
	return []string{r.ID, string(r.Params.Dataset()), string(r.Trigger), string(r.State), formatTime(r.StartedAt), formatTime(r.FinishedAt)}
}

var runHeaders = []string{"ID", "DATASET", "TRIGGER", "STATE", "STARTED", "FINISHED"}

func datasetArg(name string) (domain.Dataset, error) {
	if name == "" {
		return "", fmt.Errorf("dataset is required")
	}
	return domain.Dataset(name), nil
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, version string) int {
	root := NewRootCmd(version)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
