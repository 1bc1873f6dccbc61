package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recreate bool

func init() {
	cmd := &cobra.Command{
		Use:   "setup-vectordb",
		Short: "Create the vector collection if it does not exist",
		Run:   runSetup,
	}
	cmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and recreate the collection (deletes all points)")

	RootCmd.AddCommand(cmd)
}

func runSetup(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	store := openVectorStore(cfg)
	defer store.Close()

	fmt.Println("Setting up vector database...")
	fmt.Printf("Collection: %s\n", cfg.QdrantCollection)

	if recreate {
		if err := store.Recreate(cmd.Context()); err != nil {
			exitErr("recreate collection", err)
		}
	} else if err := store.EnsureReady(cmd.Context()); err != nil {
		exitErr("initialize collection", err)
	}
	fmt.Println("✅ Vector database initialized successfully!")

	printStats(cmd.Context(), store)
}
