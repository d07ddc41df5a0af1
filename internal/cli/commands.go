package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"etlbranching/internal/domain"
	"etlbranching/internal/pipeline"
	"etlbranching/internal/service"
)

type envFunc func(cmd *cobra.Command) *env

func newRunCmd(envFn envFunc) *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger one run of the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFn(cmd)
			a, err := e.open()
			if err != nil {
				return err
			}
			defer a.Close()

			params := domain.RunParams{}
			if cmd.Flags().Changed("dataset") {
				params[domain.ParamDataset] = dataset
			}
			run, err := a.Pipeline.Trigger(cmd.Context(), service.TriggerInput{Params: params, Trigger: domain.TriggerManual})
			if run != nil {
				e.output().Print(runHeaders, [][]string{runRow(run)}, run)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", string(domain.DefaultDataset), "Dataset to process (walmart, instagram)")
	return cmd
}

// newTaskCmd builds extract/load: one task for one dataset, outside a run.
func newTaskCmd(envFn envFunc, use, short string, taskID func(domain.Dataset) string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " DATASET",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFn(cmd)
			ds, err := datasetArg(args[0])
			if err != nil {
				return err
			}
			a, err := e.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Runner.Catalog.Lookup(ds); err != nil {
				return err
			}
			out, err := a.Pipeline.RunTask(cmd.Context(), taskID(ds), domain.RunParams{domain.ParamDataset: string(ds)})
			if err != nil {
				return err
			}
			o := e.output()
			if e.flags.jsonOutput {
				o.JSON(out)
			} else {
				o.Line(fmt.Sprint(out))
			}
			return nil
		},
	}
}

func newExtractCmd(envFn envFunc) *cobra.Command {
	return newTaskCmd(envFn, "extract", "Download a dataset and write its staging CSV", pipeline.ExtractTaskID)
}

func newLoadCmd(envFn envFunc) *cobra.Command {
	return newTaskCmd(envFn, "load", "Replace a dataset's table from its staging CSV", pipeline.LoadTaskID)
}

func newBranchCmd(envFn envFunc) *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Print the extract task the branch selects",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := domain.RunParams{}
			if cmd.Flags().Changed("dataset") {
				params[domain.ParamDataset] = dataset
			}
			envFn(cmd).output().Line(pipeline.ChooseBranch(params))
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", string(domain.DefaultDataset), "Value of the dataset param")
	return cmd
}

func newRunsCmd(envFn envFunc) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFn(cmd)
			a, err := e.open()
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.Pipeline.ListRuns(limit)
			if err != nil {
				return err
			}
			rows := make([][]string, len(runs))
			for i := range runs {
				rows[i] = runRow(&runs[i])
			}
			e.output().Print(runHeaders, rows, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}

func newDatasetsCmd(envFn envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the dataset catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFn(cmd)
			cfg, err := e.config()
			if err != nil {
				return err
			}
			cat := cfg.Catalog()
			specs := make([]domain.DatasetSpec, 0, len(cat))
			rows := make([][]string, 0, len(cat))
			for _, name := range cat.Names() {
				spec := cat[name]
				specs = append(specs, spec)
				rows = append(rows, []string{string(spec.Name), spec.Handle, spec.File, domain.StagingPath(cfg.DataDir, name)})
			}
			e.output().Print([]string{"NAME", "HANDLE", "FILE", "STAGING"}, rows, specs)
			return nil
		},
	}
}

func newServeCmd(envFn envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, schedule and staging watcher until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := envFn(cmd).open()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(ctx)
		},
	}
}

func newMCPCmd(envFn envFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := envFn(cmd).open()
			if err != nil {
				return err
			}
			defer a.Close()
			return a.ServeMCP(ctx)
		},
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
