package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgewright/enginecore/pkg/atcommands"
	"github.com/forgewright/enginecore/pkg/capabilities"
	"github.com/forgewright/enginecore/pkg/config"
	"github.com/forgewright/enginecore/pkg/dispatch"
	"github.com/forgewright/enginecore/pkg/environment"
	"github.com/forgewright/enginecore/pkg/httpapi"
	"github.com/forgewright/enginecore/pkg/memory"
	"github.com/forgewright/enginecore/pkg/permissions"
	"github.com/forgewright/enginecore/pkg/scratchpad"
	"github.com/forgewright/enginecore/pkg/streamproxy"
	"github.com/forgewright/enginecore/pkg/tools"
	"github.com/forgewright/enginecore/pkg/tools/builtin"
)

// serveFlags mirror spec.md §6.4's CLI surface (only the flags relevant
// to the core, per that section's note).
type serveFlags struct {
	configPath      string
	addressURL      string
	apiKey          string
	httpPort        int
	lspPort         int
	ast             bool
	vecdb           bool
	vecdbMaxFiles   int
	vecdbForcePath  string
	experimental    bool
	insideContainer bool
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine's HTTP surface",
		RunE:  flags.run,
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "enginecore.yaml", "Path to the process config file")
	cmd.Flags().StringVar(&flags.addressURL, "address-url", "", "Default provider endpoint (overrides config)")
	cmd.Flags().StringVar(&flags.apiKey, "api-key", "", "Default provider API key (overrides config)")
	cmd.Flags().IntVar(&flags.httpPort, "http-port", 0, "HTTP listen port (overrides config)")
	cmd.Flags().IntVar(&flags.lspPort, "lsp-port", 0, "LSP listen port (overrides config)")
	cmd.Flags().BoolVar(&flags.ast, "ast", false, "Enable AST-aware context gathering")
	cmd.Flags().BoolVar(&flags.vecdb, "vecdb", false, "Enable the vector indexing service")
	cmd.Flags().IntVar(&flags.vecdbMaxFiles, "vecdb-max-files", 0, "Cap on files the vectorizer will index (overrides config)")
	cmd.Flags().StringVar(&flags.vecdbForcePath, "vecdb-force-path", "", "Directory to store vector databases in (overrides config)")
	cmd.Flags().BoolVar(&flags.experimental, "experimental", false, "Enable experimental features")
	cmd.Flags().BoolVar(&flags.insideContainer, "inside-container", false, "Run at-command resolution remotely via /v1/at-command-execute")

	return cmd
}

func (f *serveFlags) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	f.applyOverrides(cfg)

	env := environment.NewDefaultProvider()
	modelSource := config.NewModelSource(cfg, env)
	models := capabilities.New(modelSource, capabilities.WithEnvResolver(osEnvResolver{env: env}))

	registry, err := buildToolRegistry(ctx)
	if err != nil {
		return fmt.Errorf("building tool registry: %w", err)
	}

	checker := permissions.NewChecker(&cfg.Permissions)
	tok := approxTokenCounter{}
	tracer := setupTracing(ctx)

	dispatcher := dispatch.New(registry, dispatch.WithPermissions(checker), dispatch.WithTokenCounter(tok), dispatch.WithTracer(tracer))
	sp := scratchpad.New(atcommands.NewResolver(), tok)
	proxy := streamproxy.New(nil, cfg.AddressURL, cfg.APIKey)

	server := httpapi.New(sp, dispatcher, models, proxy)

	var memories *memory.Store
	var vecdb *vecdbSet
	if cfg.VecDB {
		dir := cfg.VecDBForcePath
		if dir == "" {
			dir = "vecdb"
		}
		memories, err = memory.Open(ctx, dir+"/memory.db")
		if err != nil {
			return fmt.Errorf("opening memory store: %w", err)
		}
		embedding, err := models.GetEmbeddingModel()
		if err != nil {
			slog.Warn("vecdb enabled but no embedding model configured", "error", err)
		} else {
			vecdb, err = startVecDB(ctx, dir, embeddingModel{
				id:       embedding.ID,
				endpoint: embedding.Endpoint,
				apiKey:   embedding.APIKey,
				style:    string(embedding.EndpointStyle),
			}, cfg.VecDBMaxFiles, embedding.NCtx, memories)
			if err != nil {
				return fmt.Errorf("starting vecdb: %w", err)
			}
			go vecdb.vectorizer.Run(ctx)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(addr) }()

	slog.Info("enginecored listening", "addr", addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
	if vecdb != nil {
		vecdb.Close()
	}
	if memories != nil {
		_ = memories.Close()
	}

	return nil
}

func (f *serveFlags) applyOverrides(cfg *config.ProcessConfig) {
	if f.addressURL != "" {
		cfg.AddressURL = f.addressURL
	}
	if f.apiKey != "" {
		cfg.APIKey = f.apiKey
	}
	if f.httpPort != 0 {
		cfg.HTTPPort = f.httpPort
	}
	if f.lspPort != 0 {
		cfg.LSPPort = f.lspPort
	}
	if f.vecdbMaxFiles != 0 {
		cfg.VecDBMaxFiles = f.vecdbMaxFiles
	}
	if f.vecdbForcePath != "" {
		cfg.VecDBForcePath = f.vecdbForcePath
	}
	cfg.AST = cfg.AST || f.ast
	cfg.VecDB = cfg.VecDB || f.vecdb
	cfg.Experimental = cfg.Experimental || f.experimental
	cfg.InsideContainer = cfg.InsideContainer || f.insideContainer
}

// buildToolRegistry wires the always-available builtin tools into a
// dispatch.Registry (spec.md §4.12). Shell and sandboxed tools are
// gated behind the confirm/deny policy at dispatch time, not here.
func buildToolRegistry(ctx context.Context) (*dispatch.Registry, error) {
	runConfig := &config.RuntimeConfig{
		DefaultEnvProvider: environment.NewDefaultProvider(),
		WorkingDir:         ".",
	}

	toolSets := []tools.ToolSet{
		builtin.NewThinkTool(),
		builtin.NewTodoTool(),
		builtin.NewBashTool(),
		builtin.NewShellTool(nil, runConfig, nil),
	}

	return dispatch.NewRegistry(ctx, toolSets...)
}

// approxTokenCounter is the token counter serve uses: roughly 4
// characters per token, rounded up. It does not load a model-specific
// tokenizer artifact; pkg/tokenizer's Cache is not wired in here.
type approxTokenCounter struct{}

func (approxTokenCounter) CountTokens(s string) int { return (len(s) + 3) / 4 }

// osEnvResolver adapts environment.Provider to capabilities.EnvResolver.
type osEnvResolver struct{ env environment.Provider }

func (r osEnvResolver) Lookup(name string) (string, bool) {
	return r.env.Get(context.Background(), name)
}
