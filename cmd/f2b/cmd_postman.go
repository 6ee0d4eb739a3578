package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"f2b/internal/collection"
	"f2b/internal/llm"
	llmclient "f2b/internal/llm/client"
	"f2b/internal/types"
	"f2b/internal/util/jsonutil"
)

var postmanCmd = &cobra.Command{
	Use:   "postman <endpoints.json>",
	Short: "Build a Postman collection from an endpoint list",
	Long: `Build postman_collection.json from a discovered or sorted endpoint list.

With --code the collection is written by the model from the generated
routes and models in a final_code.json file instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runPostman,
}

func init() {
	postmanCmd.Flags().String("name", "", "Collection name (default: parent directory name)")
	postmanCmd.Flags().StringP("out", "o", "", "Output directory (default: next to the input)")
	postmanCmd.Flags().String("code", "", "final_code.json to build the collection from with the model")
}

func runPostman(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	in := args[0]
	name, _ := cmd.Flags().GetString("name")
	out, _ := cmd.Flags().GetString("out")
	codePath, _ := cmd.Flags().GetString("code")
	if out == "" {
		out = filepath.Dir(in)
	}
	if strings.TrimSpace(name) == "" {
		abs, _ := filepath.Abs(filepath.Dir(in))
		name = filepath.Base(abs)
	}

	var endpoints []types.Endpoint
	if err := jsonutil.ReadFile(in, &endpoints); err != nil {
		return err
	}
	project := &types.Project{ID: name, RepoName: name, Dir: out}

	var gen collection.Generator = collection.Converter{}
	var files []types.GeneratedFile
	if codePath != "" {
		if err := jsonutil.ReadFile(codePath, &files); err != nil {
			return err
		}
		p, err := llmclient.New(cmd.Context(), cfg.LLM.ProviderFor("collection"), cfg.LLM)
		if err != nil {
			return err
		}
		defer p.Close()
		gen = collection.NewLLMGenerator(llm.Wrap(p,
			llm.WithLogging(log),
			llm.Retry(cfg.LLM.RetryAttempts, cfg.LLM.RetryDelay),
		), log)
	}

	path, err := gen.Generate(cmd.Context(), project, endpoints, files)
	if err != nil {
		return err
	}
	log.Info().Int("endpoints", len(endpoints)).Str("path", path).Msg("collection written")
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
