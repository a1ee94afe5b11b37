// Command agentd runs an AgentZero cognitive agent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"agentzero/internal/agent"
	"agentzero/internal/config"
	"agentzero/internal/knowledge"
	"agentzero/internal/store"
	"agentzero/internal/tasks"
)

var (
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	valStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentd",
		Short:         "Cognitive agent daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			logger, err = buildLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "agentd.yaml", "path to config file")
	root.AddCommand(runCmd(), stepCmd(), statusCmd(), goalCmd(), exportCmd())
	return root
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// newStore builds the configured store backend. The returned closer
// is a no-op for the memory backend.
func newStore() (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return store.NewMemory(logger), func() {}, nil
	}
}

func newAgent() (*agent.Core, func(), error) {
	st, closeStore, err := newStore()
	if err != nil {
		return nil, nil, err
	}
	core := agent.New(cfg.AgentName, st, cfg, logger)
	if err := core.Init(); err != nil {
		closeStore()
		return nil, nil, err
	}
	return core, closeStore, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, closeStore, err := newAgent()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := core.Start(ctx); err != nil {
				return err
			}

			watcher := config.NewWatcher(cfgPath, logger, func(next *config.Config) {
				directive := fmt.Sprintf("cycle_interval=%s", next.Loop.CycleInterval)
				if err := core.Configure(directive); err != nil {
					logger.Warn("apply reloaded config", zap.Error(err))
				}
				for _, d := range []string{
					fmt.Sprintf("goal_processing=%t", next.Agent.GoalProcessing),
					fmt.Sprintf("knowledge_integration=%t", next.Agent.KnowledgeIntegration),
					fmt.Sprintf("max_concurrent=%d", next.Tasks.MaxConcurrent),
				} {
					if err := core.Configure(d); err != nil {
						logger.Warn("apply reloaded config", zap.Error(err))
					}
				}
			})
			if err := watcher.Start(); err != nil {
				logger.Warn("config watch unavailable", zap.Error(err))
			} else {
				defer watcher.Stop()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			logger.Info("shutting down", zap.String("signal", sig.String()))
			core.Stop()
			return nil
		},
	}
}

func stepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "step [count]",
		Short: "Run synchronous cognitive cycles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return fmt.Errorf("invalid cycle count %q", args[0])
				}
				n = v
			}
			core, closeStore, err := newAgent()
			if err != nil {
				return err
			}
			defer closeStore()

			failed := 0
			for i := 0; i < n; i++ {
				if !core.RunCycle(cmd.Context()) {
					failed++
				}
			}
			if failed > 0 {
				fmt.Println(warnStyle.Render(fmt.Sprintf("%d of %d cycles had phase failures", failed, n)))
			}
			fmt.Print(renderStatus(core.Status()))
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the agent component snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, closeStore, err := newAgent()
			if err != nil {
				return err
			}
			defer closeStore()
			fmt.Print(renderStatus(core.Status()))
			return nil
		},
	}
}

func goalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goal <description>",
		Short: "Preview how a goal decomposes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, closeStore, err := newAgent()
			if err != nil {
				return err
			}
			defer closeStore()

			ref := core.SetGoal(args[0], true)
			if ref.IsNil() {
				return fmt.Errorf("goal rejected: %q", args[0])
			}
			tm := core.Tasks()
			fmt.Println(titleStyle.Render("Goal: " + args[0]))
			for i, task := range tm.TasksByStatus(tasks.Pending) {
				label, err := core.Store().Label(task)
				if err != nil {
					continue
				}
				fmt.Printf("  %s %s\n", keyStyle.Render(fmt.Sprintf("%d.", i+1)), valStyle.Render(label))
			}
			tv := tm.GoalAchievement(ref)
			fmt.Printf("  %s %s\n", keyStyle.Render("achievement:"), valStyle.Render(fmt.Sprintf("%.2f (conf %.2f)", tv.Strength, tv.Confidence)))
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, closeStore, err := newAgent()
			if err != nil {
				return err
			}
			defer closeStore()
			ki := core.Knowledge()
			if ki == nil {
				return fmt.Errorf("knowledge integration disabled")
			}
			fmt.Println(ki.ExportKnowledge(format, knowledge.Factual))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "export format (json or text)")
	return cmd
}

// renderStatus pretty-prints the nested component snapshot.
func renderStatus(status map[string]any) string {
	var out string
	sections := make([]string, 0, len(status))
	for name := range status {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	for _, name := range sections {
		out += titleStyle.Render(name) + "\n"
		fields, ok := status[name].(map[string]any)
		if !ok {
			out += "  " + valStyle.Render(fmt.Sprint(status[name])) + "\n"
			continue
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out += fmt.Sprintf("  %s %s\n", keyStyle.Render(k+":"), valStyle.Render(fmt.Sprint(fields[k])))
		}
	}
	return out
}
