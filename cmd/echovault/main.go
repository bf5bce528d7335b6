// Command echovault is a local voice assistant: it records speech from the
// microphone, transcribes it, asks a language model for a reply and speaks
// the answer back.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MrWong99/echovault/internal/app"
	"github.com/MrWong99/echovault/internal/config"
	"github.com/MrWong99/echovault/internal/console"
	"github.com/MrWong99/echovault/internal/observe"
	"github.com/MrWong99/echovault/internal/turn"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	mode       string
	ui         bool
}

func newRootCmd() *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "echovault",
		Short:         "Voice assistant with push-to-talk and wake phrase modes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := run(cmd.Context(), f)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "echovault: %v\n", err)
			}
			return err
		},
	}
	root.Flags().StringVarP(&f.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.Flags().StringVarP(&f.mode, "mode", "m", "", "override conversation.mode: push-to-talk or always-listening")
	root.Flags().BoolVar(&f.ui, "ui", false, "serve the web event feed, health probes and metrics")

	root.AddCommand(newProvidersCmd())
	return root
}

// newProvidersCmd lists the built-in provider names per kind.
func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the built-in providers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			reg := config.NewRegistry()
			app.RegisterBuiltinProviders(reg)
			for _, kind := range []string{"audio", "stt", "llm", "tts", "vad", "wakeword"} {
				names := reg.Names(kind)
				if kind == "wakeword" {
					names = config.ValidProviderNames[kind]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-9s %s\n", kind, strings.Join(names, ", "))
			}
		},
	}
}

func run(ctx context.Context, f flags) error {
	var mode turn.Mode
	if f.mode != "" {
		m, err := turn.ParseMode(f.mode)
		if err != nil {
			return err
		}
		mode = m
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	observe.InitLogger(os.Stderr, string(cfg.Server.LogLevel))
	slog.Info("echovault starting",
		"version", version,
		"config", f.configPath,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "echovault",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	opts := []app.Option{
		app.WithUI(f.ui),
		app.WithConsole(os.Stdout, term.IsTerminal(int(os.Stdin.Fd()))),
	}
	if mode != "" {
		opts = append(opts, app.WithModeOverride(mode))
	}
	if _, err := os.Stat(f.configPath); !errors.Is(err, fs.ErrNotExist) {
		opts = append(opts, app.WithConfigPath(f.configPath))
	}

	a, err := app.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Conversation.Mode == turn.ModeAlwaysListening {
		fmt.Println("Listening for the wake phrase. Type 'quit' to exit.")
	}
	cmds := console.ReadCommands(ctx, os.Stdin, os.Stderr)
	if err := a.Run(ctx, cmds); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("goodbye")
	return nil
}
