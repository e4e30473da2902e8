package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/repobrain/repobrain/internal/adapters/driven/oracle/anthropic"
	"github.com/repobrain/repobrain/internal/adapters/driven/workspace/craft"
	"github.com/repobrain/repobrain/internal/adapters/driving/api"
	"github.com/repobrain/repobrain/internal/connectors/github"
	"github.com/repobrain/repobrain/internal/core/ports/driven"
	"github.com/repobrain/repobrain/internal/core/services"
	"github.com/repobrain/repobrain/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine and connection API",
	Long: `Starts the long-running sync engine and the HTTP connection API.

The engine sweeps every connected repository on a fixed interval; the API
serves the analyse, manual-sync, disconnect and status endpoints plus the
provider webhook.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "HTTP port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgStore, err := configStore(cmd)
	if err != nil {
		return err
	}
	settings := driven.LoadSettings(cfgStore)

	if port, err := cmd.Flags().GetInt("port"); err == nil && port > 0 {
		settings.ServerPort = port
	}

	apiKey := settings.AnthropicKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("no Anthropic API key: set %s in %s or export ANTHROPIC_API_KEY",
			driven.ConfigAnthropicKey, cfgStore.Path())
	}

	oracle, err := anthropic.NewAnalyser(anthropic.Config{
		APIKey: apiKey,
		Model:  settings.AnthropicModel,
	})
	if err != nil {
		return fmt.Errorf("configuring oracle: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connections, history, err := openConnectionStore(settings.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := connections.Close(); err != nil {
			logger.Warn("closing connection store: %v", err)
		}
	}()
	if err := connections.Initialize(ctx); err != nil {
		return fmt.Errorf("loading connections: %w", err)
	}
	if history != nil {
		if err := history.Prune(ctx, 200); err != nil {
			logger.Warn("pruning sync history: %v", err)
		}
	}

	providers := github.NewFactory()
	workspaces := craft.NewFactory()

	materialiser := services.NewMaterialiser(providers, workspaces, oracle, connections)
	processor := services.NewProcessor(providers, workspaces, oracle, history)
	engine := services.NewEngine(connections, providers, workspaces, processor, services.EngineConfig{
		SyncInterval:    settings.SyncInterval,
		MinRepoInterval: settings.SyncMinInterval,
		Workers:         settings.SyncWorkers,
	})

	server := api.NewServer(api.Deps{
		Materialiser:  materialiser,
		Engine:        engine,
		Connections:   connections,
		Sessions:      newSessionStore(),
		Providers:     providers,
		Workspaces:    workspaces,
		WebhookSecret: settings.WebhookSecret,
	})

	logger.Info("repobrain %s starting", version)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return engine.Start(ctx) })
	group.Go(func() error { return server.Start(ctx, settings.ServerPort) })

	if err := group.Wait(); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
