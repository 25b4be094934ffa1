// Command dbcheck verifies that the document store is reachable, lists what it
// holds and can insert a test document.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/internal/config"
	"github.com/gogotex/gogotex/backend/collab-service/internal/database"
	"github.com/gogotex/gogotex/backend/collab-service/internal/document/repository"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/spf13/cobra"
)

const (
	testTitle   = "Test Document"
	testContent = "This is a test document to verify the database is working."
)

var (
	insertTest bool
	uri        string
)

var rootCmd = &cobra.Command{
	Use:   "dbcheck",
	Short: "Check connectivity to the document store and list stored documents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)
		if uri == "" {
			uri = cfg.MongoDB.URI
		}
		if uri == "" {
			uri = "mongodb://127.0.0.1:27017"
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		fmt.Fprintln(cmd.OutOrStdout(), "Connecting to MongoDB...")
		client, err := database.ConnectMongo(ctx, uri, cfg.MongoDB.Timeout)
		if err != nil {
			return err
		}
		defer func() {
			_ = client.Disconnect(context.Background())
			fmt.Fprintln(cmd.OutOrStdout(), "Disconnected from MongoDB")
		}()
		fmt.Fprintln(cmd.OutOrStdout(), "Connected to MongoDB successfully!")

		repo := repository.NewMongoRepo(client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection))
		return run(ctx, cmd.OutOrStdout(), repo, insertTest)
	},
}

// run lists the store, optionally inserts the test document, and lists again.
func run(ctx context.Context, out io.Writer, repo repository.Repository, insert bool) error {
	if err := list(ctx, out, repo); err != nil {
		return err
	}
	if !insert {
		return nil
	}
	fmt.Fprintln(out, "\nCreating a test document...")
	d, err := repo.Create(ctx, testTitle, testContent)
	if err != nil {
		return fmt.Errorf("create test document: %w", err)
	}
	fmt.Fprintf(out, "Test document created successfully! id=%s\n\n", d.ID)
	return list(ctx, out, repo)
}

func list(ctx context.Context, out io.Writer, repo repository.Repository) error {
	docs, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	fmt.Fprintf(out, "Found %d documents in database:\n", len(docs))
	for _, d := range docs {
		fmt.Fprintf(out, "- ID: %s, Title: %s, Updated: %s\n", d.ID, d.Title, d.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

func init() {
	rootCmd.Flags().BoolVar(&insertTest, "insert-test", false, "Insert a test document and list again")
	rootCmd.Flags().StringVar(&uri, "uri", "", "MongoDB URI (defaults to MONGODB_URI)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Database check failed:", err)
		os.Exit(1)
	}
}
