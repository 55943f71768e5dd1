package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hiro-org/hiro/internal/agents"
	openaiagents "github.com/hiro-org/hiro/internal/agents/openai"
	"github.com/hiro-org/hiro/internal/broadcast"
	"github.com/hiro-org/hiro/internal/common/config"
	"github.com/hiro-org/hiro/internal/common/logger"
	"github.com/hiro-org/hiro/internal/core"
	"github.com/hiro-org/hiro/internal/hitl"
	"github.com/hiro-org/hiro/internal/persistence/sqlite"
	"github.com/hiro-org/hiro/internal/runtime"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] <goal>",
		Short: "Decompose and execute a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx := logger.WithLogger(cmd.Context(), lg)

			registry, err := buildRegistry(cmd, cfg)
			if err != nil {
				return err
			}

			opts, cleanup, err := projectOptions(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			taskType, _ := cmd.Flags().GetString("task-type")
			opts = append(opts, runtime.WithRootTaskType(core.TaskTypeFromString(strings.ToUpper(taskType))))

			project := runtime.NewProject(args[0], registry, opts...)
			return execute(ctx, cmd, cfg, project, func(ctx context.Context) runtime.RunResult {
				return project.Engine().Run(ctx)
			})
		},
	}

	addRunFlags(cmd)
	return cmd
}

func newResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [flags] <project-id>",
		Short: "Resume an interrupted run from its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := setup(cmd)
			if err != nil {
				return err
			}
			ctx := logger.WithLogger(cmd.Context(), lg)

			registry, err := buildRegistry(cmd, cfg)
			if err != nil {
				return err
			}

			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}

			opts, cleanup, err := projectOptions(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			project, err := runtime.RestoreProject(snap, registry, opts...)
			if err != nil {
				return err
			}
			return execute(ctx, cmd, cfg, project, func(ctx context.Context) runtime.RunResult {
				return project.Engine().Resume(ctx)
			})
		},
	}

	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("task-type", "WRITE", "task type of the root goal (WRITE, THINK, SEARCH, ...)")
	cmd.Flags().String("profile", "", "agent profile file (YAML)")
	cmd.Flags().Bool("review", false, "pause at review checkpoints and prompt on the terminal")
	cmd.Flags().Bool("save", false, "persist a snapshot when the run ends")
	cmd.Flags().Bool("serve-updates", false, "expose live updates over a websocket endpoint")
}

func buildRegistry(cmd *cobra.Command, cfg *config.Config) (*agents.Registry, error) {
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("openai.apiKey is not configured (set HIRO_OPENAI_APIKEY or config.yaml)")
	}

	profile := agents.DefaultProfile()
	path, _ := cmd.Flags().GetString("profile")
	if path == "" {
		path = cfg.ProfilePath
	}
	if path != "" {
		loaded, err := agents.LoadProfile(path)
		if err != nil {
			return nil, err
		}
		profile = loaded
	}

	client := openaiagents.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	return openaiagents.BuildRegistry(client, profile), nil
}

// projectOptions assembles the runtime options from flags and config: the
// engine knobs, the optional terminal reviewer, and the optional websocket
// update server. The cleanup closes whatever was started.
func projectOptions(ctx context.Context, cmd *cobra.Command, cfg *config.Config) ([]runtime.ProjectOption, func(), error) {
	opts := []runtime.ProjectOption{runtime.WithConfig(cfg.RuntimeConfig())}
	cleanup := func() {}

	if review, _ := cmd.Flags().GetBool("review"); review {
		transport := hitl.NewChannelTransport(4)
		hitlCfg := cfg.HITLCoordinatorConfig()
		if !cfg.HITL.Enabled {
			// --review with no config section defaults to reviewing plans.
			hitlCfg = hitl.Config{AfterPlanGeneration: true, AfterModifiedPlan: true, ReviewTimeout: cfg.HITL.ReviewTimeout}
		}
		opts = append(opts, runtime.WithHITL(hitl.NewCoordinator(hitlCfg, transport)))
		go terminalReviewer(ctx, transport, cmd.OutOrStdout())
	}

	if serve, _ := cmd.Flags().GetBool("serve-updates"); serve {
		hub := broadcast.NewWebSocketHub()
		srv := &http.Server{Addr: cfg.Server.Addr, Handler: hub}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(ctx, "Update server stopped", "err", err)
			}
		}()
		opts = append(opts, runtime.WithBroadcaster(hub))
		cleanup = func() { srv.Close() }
		logger.Info(ctx, "Serving live updates", "addr", cfg.Server.Addr)
	}

	return opts, cleanup, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*sqlite.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return sqlite.Open(ctx, cfg.SnapshotDB)
}

// execute drives the run with signal handling and optional snapshotting.
func execute(ctx context.Context, cmd *cobra.Command, cfg *config.Config, project *runtime.Project, run func(context.Context) runtime.RunResult) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		project.Cancel()
	}()

	result := run(ctx)

	if save, _ := cmd.Flags().GetBool("save"); save || result.Status == runtime.RunFailed {
		if store, err := openStore(context.Background(), cfg); err == nil {
			if err := store.Save(context.Background(), project.Snapshot()); err != nil {
				logger.Error(ctx, "Snapshot save failed", "err", err)
			} else {
				logger.Info(ctx, "Snapshot saved", "project", project.ID)
			}
			store.Close()
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status: %s (steps: %d)\n", result.Status, result.Steps)
	if result.Summary != "" {
		fmt.Fprintf(out, "summary: %s\n", result.Summary)
	}
	if result.FinalOutput != nil {
		fmt.Fprintf(out, "\n%v\n", result.FinalOutput)
	}
	if result.Diagnostics != nil {
		fmt.Fprintf(out, "\ndiagnosis: %s\n", result.Diagnostics.String())
	}
	if result.Err != nil {
		return result.Err
	}
	return nil
}

// terminalReviewer consumes review requests and prompts on the terminal:
// [a]pprove, [m]odify (with instructions), a[b]ort.
func terminalReviewer(ctx context.Context, transport *hitl.ChannelTransport, out io.Writer) {
	stdin := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case pending, ok := <-transport.Requests():
			if !ok {
				return
			}
			fmt.Fprintf(out, "\n[review] %s (node %s, attempt %d)\n", pending.Request.ContextMessage, pending.Request.NodeID, pending.Request.Attempt)
			if pending.Request.DataForReview != nil {
				fmt.Fprintf(out, "%v\n", pending.Request.DataForReview)
			}
			fmt.Fprintf(out, "approve [a] / modify [m] / abort [b]: ")

			line, err := stdin.ReadString('\n')
			if err != nil {
				pending.Approve()
				continue
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "m":
				fmt.Fprintf(out, "instructions: ")
				instr, _ := stdin.ReadString('\n')
				pending.Modify(strings.TrimSpace(instr))
			case "b":
				pending.Abort()
			default:
				pending.Approve()
			}
		}
	}
}
