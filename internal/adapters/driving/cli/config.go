package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/repobrain/repobrain/internal/core/ports/driven"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage repobrain configuration",
	Long: `View and change the configuration the serve command reads at startup.

Keys use dotted section syntax, for example:
  repobrain config set server.port 9090
  repobrain config set anthropic.api_key sk-ant-...
  repobrain config set sync.interval_seconds 300`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	store, err := configStore(cmd)
	if err != nil {
		return err
	}
	settings := driven.LoadSettings(store)

	cmd.Printf("Config file: %s\n\n", store.Path())

	cmd.Println("[Server]")
	cmd.Printf("  Port: %d\n", settings.ServerPort)
	if settings.WebhookSecret != "" {
		cmd.Println("  Webhook secret: (set)")
	} else {
		cmd.Println("  Webhook secret: (not set, webhook disabled)")
	}
	cmd.Println()

	cmd.Println("[Sync]")
	cmd.Printf("  Interval: %s\n", settings.SyncInterval)
	cmd.Printf("  Min per-repo interval: %s\n", settings.SyncMinInterval)
	cmd.Printf("  Workers: %d\n", settings.SyncWorkers)
	cmd.Println()

	cmd.Println("[Anthropic]")
	if settings.AnthropicKey != "" {
		cmd.Printf("  API key: %s\n", maskSecret(settings.AnthropicKey))
	} else {
		cmd.Println("  API key: (not set)")
	}
	if settings.AnthropicModel != "" {
		cmd.Printf("  Model: %s\n", settings.AnthropicModel)
	} else {
		cmd.Println("  Model: (default)")
	}
	cmd.Println()

	cmd.Println("[Storage]")
	if settings.DataDir != "" {
		cmd.Printf("  Data dir: %s\n", settings.DataDir)
	} else {
		cmd.Println("  Data dir: (default ~/.repobrain/data)")
	}

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	store, err := configStore(cmd)
	if err != nil {
		return err
	}

	key, raw := args[0], args[1]
	if key == "" {
		return errors.New("key must not be empty")
	}

	// Integers stay integers so GetInt works on reload.
	var value any = raw
	if n, convErr := strconv.Atoi(raw); convErr == nil {
		value = n
	} else if b, convErr := strconv.ParseBool(raw); convErr == nil {
		value = b
	}

	if err := store.Set(key, value); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	cmd.Printf("Set %s in %s\n", key, store.Path())
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	store, err := configStore(cmd)
	if err != nil {
		return err
	}

	value, ok := store.Get(args[0])
	if !ok {
		return fmt.Errorf("key %q is not set", args[0])
	}
	cmd.Printf("%v\n", value)
	return nil
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
