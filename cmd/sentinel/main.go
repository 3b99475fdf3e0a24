// Command sentinel is the Galaxy cluster monitoring agent: periodic
// threshold checks, AI-driven alert investigation, and a daily digest.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rampager01/galaxy-agents/internal/agent"
	"github.com/rampager01/galaxy-agents/internal/checks"
	"github.com/rampager01/galaxy-agents/internal/cluster"
	"github.com/rampager01/galaxy-agents/internal/config"
	"github.com/rampager01/galaxy-agents/internal/llm/provider"
	"github.com/rampager01/galaxy-agents/internal/logging"
	"github.com/rampager01/galaxy-agents/internal/lokiq"
	"github.com/rampager01/galaxy-agents/internal/metrics"
	"github.com/rampager01/galaxy-agents/internal/scheduler"
	"github.com/rampager01/galaxy-agents/internal/slack"
	"github.com/rampager01/galaxy-agents/internal/statestore"
	"github.com/rampager01/galaxy-agents/internal/vmetrics"
)

var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Galaxy Sentinel cluster monitoring agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(runCmd(), checkCmd(), digestCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if rt.cfg.MetricsAddr != "" {
				go metrics.Serve(ctx, rt.cfg.MetricsAddr, rt.log)
			}

			// Nil pointers must stay nil interfaces for the scheduler's
			// degraded-mode checks.
			var (
				investigator scheduler.Investigator
				digest       scheduler.DigestRunner
			)
			if rt.investigator != nil {
				investigator = rt.investigator
			}
			if rt.digest != nil {
				digest = rt.digest
			}

			rt.log.Info("galaxy sentinel starting", zap.String("version", version))
			loop := scheduler.New(rt.cfg, rt.deps, investigator, digest, rt.notifier, rt.store, rt.log)
			return loop.Run(ctx)
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the threshold checks once and print any alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			alerts := checks.RunAll(cmd.Context(), rt.deps, checks.All())
			if len(alerts) == 0 {
				fmt.Println("all checks passed")
				return nil
			}
			for _, a := range alerts {
				fmt.Println(a.String())
			}
			return nil
		},
	}
}

func digestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Generate and send the daily digest once",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			if rt.digest == nil {
				return fmt.Errorf("no llm credentials configured")
			}
			return rt.digest.Generate(cmd.Context())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sentinel version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("sentinel", version)
		},
	}
}

// runtime is the wired object graph shared by the subcommands.
type runtime struct {
	cfg          *config.Config
	log          *zap.Logger
	deps         *checks.Deps
	notifier     *slack.Webhook
	investigator *agent.Investigator
	digest       *agent.DigestGenerator
	store        scheduler.StateStore
	closers      []func()
}

func newRuntime() (*runtime, error) {
	// Local development convenience; absent .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, log: log}
	rt.closers = append(rt.closers, func() { _ = log.Sync() })

	metricsClient := vmetrics.NewClient(cfg.VictoriaMetricsURL)
	logsClient := lokiq.NewClient(cfg.LokiURL)
	rt.notifier = slack.NewWebhook(cfg.SlackWebhookURL, log)
	rt.deps = checks.NewDeps(cfg, metricsClient, logsClient, log)

	if cfg.StatePath != "" {
		store, err := statestore.Open(cfg.StatePath)
		if err != nil {
			// State is an optimization; run without it rather than refuse to start.
			log.Warn("state store unavailable, digest state is process-local", zap.Error(err))
		} else {
			rt.store = store
			rt.closers = append(rt.closers, func() { _ = store.Close() })
		}
	}

	if !cfg.AIEnabled() {
		log.Warn("no llm credentials, alerts will be forwarded without investigation",
			zap.String("provider", cfg.LLM.Provider))
		return rt, nil
	}

	llm, err := provider.New(cfg.LLM)
	if err != nil {
		return nil, err
	}
	log.Info("llm provider ready", zap.String("provider", llm.Name()))

	var clusterStatus agent.StatusFetcher
	if kc, err := cluster.NewClient(cfg.KubeconfigPath); err != nil {
		log.Warn("kubernetes api unavailable, cluster status tool disabled", zap.Error(err))
	} else {
		clusterStatus = kc
	}

	var prompts agent.PromptSource
	if cfg.SystemPromptPath != "" {
		prompts = agent.FilePromptSource{Path: cfg.SystemPromptPath}
	}

	registry := agent.NewRegistry(metricsClient, logsClient, clusterStatus, rt.notifier, log)
	rt.investigator = agent.NewInvestigator(llm, registry, rt.notifier, prompts, log)
	rt.digest = agent.NewDigestGenerator(llm, metricsClient, logsClient, rt.notifier, cfg, log)
	return rt, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
