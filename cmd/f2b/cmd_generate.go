package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"f2b/internal/app"
	"f2b/internal/pipeline"
)

var generateCmd = &cobra.Command{
	Use:   "generate <repo-url>",
	Short: "Clone a repository and generate its backend",
	Long: `Run every pipeline stage against the repository and print the result.

Each run gets a fresh PROJECTS_ROOT/<project-id>/ directory. The clone goes
to <project-id>/<repo>, and intermediate files and api.zip sit beside it.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolP("quiet", "q", false, "Hide progress output")
	generateCmd.Flags().String("collection", "", "Collection mode override: convert or llm")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if mode, _ := cmd.Flags().GetString("collection"); mode != "" {
		cfg.CollectionMode = strings.ToLower(mode)
	}
	quiet, _ := cmd.Flags().GetBool("quiet")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	prog := newProgress(cmd.ErrOrStderr(), quiet)
	defer prog.finish()
	a.Discoverer.OnProgress(prog.files)
	a.Synthesizer.OnProgress(prog.stream)

	res, err := a.Orchestrator.Stream(ctx, args[0], func(ev pipeline.Event) error {
		switch ev.Type {
		case pipeline.EventStatus:
			prog.line("» %s", ev.Message)
		case pipeline.EventError:
			prog.line("✗ %s", ev.Message)
		case pipeline.EventCompleted:
			prog.line("✓ %s", ev.Message)
		}
		return nil
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
