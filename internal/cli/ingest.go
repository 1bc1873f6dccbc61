package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"restaurantrec/internal/models"
	"restaurantrec/internal/services"
)

var (
	ingestLocations []string
	ingestFile      string
	ingestLimit     int
	ingestBatchSize int
)

func init() {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch restaurants and store their embeddings in the vector index",
		Long: "Fetch restaurants from the business search API for each location (or read them from a JSON file), " +
			"embed them and upsert them into the vector collection.",
		Run: runIngest,
	}
	cmd.Flags().StringSliceVarP(&ingestLocations, "location", "l", nil, "Location to fetch (repeatable, default: five US cities)")
	cmd.Flags().StringVar(&ingestFile, "file", "", "Read restaurants from a JSON file instead of the search API")
	cmd.Flags().IntVar(&ingestLimit, "limit", 50, "Restaurants to fetch per location (max 50)")
	cmd.Flags().IntVar(&ingestBatchSize, "batch-size", 64, "Embedding batch size")

	RootCmd.AddCommand(cmd)
}

func runIngest(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadConfig()

	embedder, err := services.NewEmbedder(cfg)
	if err != nil {
		exitErr("initialize embedder", err)
	}
	store := openVectorStore(cfg)
	defer store.Close()
	if err := store.EnsureReady(ctx); err != nil {
		exitErr("initialize collection", err)
	}

	var restaurants []models.Restaurant
	var searcher services.BusinessSearcher
	if ingestFile != "" {
		restaurants, err = readRestaurantsFile(ingestFile)
		if err != nil {
			exitErr("read restaurants", err)
		}
		fmt.Printf("Read %d restaurants from %s\n", len(restaurants), ingestFile)
	} else {
		limiter := services.NewUpstreamRateLimiter(0, 0)
		limiter.SetLimit("yelp", cfg.YelpRequestsPerSecond)
		searcher = services.NewYelpService(cfg.YelpBaseURL, cfg.YelpAPIKey, cfg.UpstreamTimeout, limiter, nil)
	}

	ing := services.NewIngester(searcher, embedder, store, ingestBatchSize)
	if searcher != nil {
		locations := ingestLocations
		if len(locations) == 0 {
			locations = services.DefaultIngestLocations
		}
		fmt.Printf("Fetching restaurants from %d locations...\n", len(locations))
		restaurants, err = ing.FetchLocations(ctx, locations, ingestLimit)
		if err != nil {
			exitErr("fetch restaurants", err)
		}
	}

	if len(restaurants) == 0 {
		fmt.Println("No restaurants fetched. Exiting.")
		return
	}

	fmt.Printf("Generating embeddings for %d restaurants...\n", len(restaurants))
	report, err := ing.Ingest(ctx, restaurants)
	if err != nil {
		exitErr("ingest", err)
	}
	if report.Rejected > 0 {
		fmt.Printf("⚠️  %d restaurants were rejected by the vector index\n", report.Rejected)
	}
	fmt.Printf("✅ Stored %d restaurants (%d skipped)\n", report.Stored, report.Skipped)

	printStats(ctx, store)
}

// readRestaurantsFile accepts either a bare JSON array or a search response
// object with a "businesses" field
func readRestaurantsFile(path string) ([]models.Restaurant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '[' {
		var restaurants []models.Restaurant
		if err := json.Unmarshal(data, &restaurants); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return restaurants, nil
	}

	var result models.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return result.Businesses, nil
}
