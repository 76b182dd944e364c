// stagehand drives multi-stage generation workflows with quality gates,
// circuit breakers, and capability handoffs.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/handoff"
	"stagehand/internal/logging"
	"stagehand/internal/workflow"
)

var (
	cfgPath string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "stagehand - resilient multi-stage workflow orchestrator",
	Long: `stagehand runs a task through a pipeline of capability units
(research, generate, review, document), scoring every stage against
quality gates and recovering from failures with retries, circuit
breakers, degraded fallbacks, and capability handoffs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if verbose {
			cfg.Logging.Debug = true
		}
		return logging.Initialize(cfg.Logging.Debug)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var runCmd = &cobra.Command{
	Use:   "run [task]",
	Short: "Start a workflow and drive it to a terminal state",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cfg, true)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		task := strings.Join(args, " ")
		id, err := app.Service.StartWorkflow(ctx, task, map[string]string{"task": task})
		if err != nil {
			return err
		}
		fmt.Printf("workflow %s started\n", id)

		// Gate thresholds can be tuned mid-run by editing the config file.
		if orch, err := app.Service.Orchestrator(ctx, id); err == nil {
			if w, werr := config.NewWatcher(cfgPath, func(updated *config.Config) {
				orch.SetGates(updated.Gates)
			}); werr == nil && w.Start() == nil {
				defer w.Stop()
			}
		}

		st, err := driveToCompletion(ctx, app.Service, id)
		if err != nil {
			return err
		}
		printState(st)
		if st.Status != workflow.StatusCompleted {
			return fmt.Errorf("workflow finished %s: %s", st.Status, st.FailReason)
		}
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start [task]",
	Short: "Create a workflow without advancing it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cfg, true)
		if err != nil {
			return err
		}
		defer app.Close()

		task := strings.Join(args, " ")
		id, err := app.Service.StartWorkflow(cmd.Context(), task, map[string]string{"task": task})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var advanceCmd = &cobra.Command{
	Use:   "advance [workflow-id]",
	Short: "Run one stage of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cfg, true)
		if err != nil {
			return err
		}
		defer app.Close()

		st, err := app.Service.Advance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show the state of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cfg, false)
		if err != nil {
			return err
		}
		defer app.Close()

		st, err := app.Service.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List checkpointed workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cfg, false)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.Store.ListWorkflows(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [workflow-id]",
	Short: "Load a checkpointed workflow and drive it to a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cfg, true)
		if err != nil {
			return err
		}
		defer app.Close()

		st, err := driveToCompletion(cmd.Context(), app.Service, args[0])
		if err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

var (
	handoffFrom     string
	handoffTo       string
	handoffTask     string
	handoffPriority int
	handoffPayload  []string
)

var handoffCmd = &cobra.Command{
	Use:   "handoff [workflow-id]",
	Short: "Submit a handoff request for a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cfg, true)
		if err != nil {
			return err
		}
		defer app.Close()

		payload := make(map[string]string, len(handoffPayload))
		for _, kv := range handoffPayload {
			key, value, found := strings.Cut(kv, "=")
			if !found {
				return fmt.Errorf("payload entry %q is not key=value", kv)
			}
			payload[key] = value
		}

		req := handoff.NewRequest(handoffFrom, handoffTo, handoffTask, payload, handoffPriority)
		id, err := app.Service.SubmitHandoff(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		fmt.Printf("handoff %s queued\n", id)
		return nil
	},
}

func driveToCompletion(ctx context.Context, svc *workflow.Service, id string) (*workflow.State, error) {
	const maxSteps = 64

	var st *workflow.State
	for step := 0; ; step++ {
		if step >= maxSteps {
			return st, fmt.Errorf("workflow %s did not reach a terminal state after %d steps", id, maxSteps)
		}
		var err error
		st, err = svc.Advance(ctx, id)
		if err != nil {
			return st, err
		}
		if len(st.History) > 0 {
			last := st.History[len(st.History)-1]
			fmt.Printf("  stage %-10s %s\n", last.Stage, last.Outcome)
		}
		if st.Status.Terminal() {
			return st, nil
		}
	}
}

func printState(st *workflow.State) {
	fmt.Printf("workflow:  %s\n", st.ID)
	fmt.Printf("status:    %s\n", st.Status)
	fmt.Printf("stage:     %s\n", st.CurrentStage)
	fmt.Printf("attempts:  %d\n", len(st.History))
	if len(st.Errors) > 0 {
		fmt.Printf("errors:    %d (last: %s)\n", len(st.Errors), st.Errors[len(st.Errors)-1].Message)
	}
	if len(st.Warnings) > 0 {
		fmt.Printf("warnings:  %d\n", len(st.Warnings))
	}
	if len(st.Artifacts) > 0 {
		fmt.Println("artifacts:")
		for kind, a := range st.Artifacts {
			suffix := ""
			if a.Tier != "" && a.Tier != "normal" {
				suffix = fmt.Sprintf(" [%s]", a.Tier)
			}
			fmt.Printf("  %s (%d chars)%s\n", kind, len(a.Content), suffix)
		}
	}
	if st.FailReason != "" {
		fmt.Printf("reason:    %s\n", st.FailReason)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".stagehand/stagehand.yaml", "path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	handoffCmd.Flags().StringVar(&handoffFrom, "from", "", "source unit")
	handoffCmd.Flags().StringVar(&handoffTo, "to", "", "target unit")
	handoffCmd.Flags().StringVar(&handoffTask, "task", "", "task description for compatibility scoring")
	handoffCmd.Flags().IntVar(&handoffPriority, "priority", 0, "queue priority (higher runs first)")
	handoffCmd.Flags().StringArrayVar(&handoffPayload, "payload", nil, "payload entries as key=value")
	_ = handoffCmd.MarkFlagRequired("from")
	_ = handoffCmd.MarkFlagRequired("to")
	_ = handoffCmd.MarkFlagRequired("task")

	rootCmd.AddCommand(runCmd, startCmd, advanceCmd, resumeCmd, statusCmd, listCmd, handoffCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
