// Package cli implements the restaurantctl operations commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"restaurantrec/internal/config"
	"restaurantrec/internal/services"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "restaurantctl",
	Short: "Operate the restaurant recommendation service",
	Long:  "Set up and inspect the vector index, ingest restaurants and chat with a running server.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		if configPath != "" {
			os.Setenv("CONFIG_FILE", configPath)
		}
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $CONFIG_FILE)")
}

// Execute runs the root command, cancelling its context on SIGINT or SIGTERM
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}
	return cfg
}

func openVectorStore(cfg *config.Config) *services.VectorStore {
	backend, err := services.NewQdrantBackend(cfg)
	if err != nil {
		exitErr("connect to qdrant", err)
	}
	return services.NewVectorStore(backend, cfg.QdrantCollection, cfg.EmbeddingDimension)
}

func printStats(ctx context.Context, store *services.VectorStore) {
	stats, err := store.Stats(ctx)
	if err != nil {
		exitErr("stats", err)
	}
	fmt.Printf("\nCollection %s (dimension %d):\n", store.Collection(), store.Dimension())
	fmt.Printf("  - Vectors: %d\n", stats.VectorCount)
	fmt.Printf("  - Points: %d\n", stats.PointCount)
	fmt.Printf("  - Status: %s\n", stats.Status)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "❌ %s: %v\n", msg, err)
	os.Exit(1)
}
