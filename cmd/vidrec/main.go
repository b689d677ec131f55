// Command vidrec searches the video catalog from the terminal and precomputes
// catalog embeddings into the configured vector store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_vidrec/internal/catalog"
	"github.com/anatolykoptev/go_vidrec/internal/engine"
	"github.com/anatolykoptev/go_vidrec/internal/refine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          "vidrec",
		Short:        "Semantic search over educational programming videos",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
	root.AddCommand(newSearchCmd(), newPrecomputeCmd())
	return root
}

func newSearchCmd() *cobra.Command {
	var (
		topN    int
		asJSON  bool
		catPath string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank videos for a topic and group them with the LLM when configured",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := engine.ConfigFromEnv()
			if catPath != "" {
				cfg.CatalogPath = catPath
			}
			eng := engine.New(cmd.Context(), cfg)
			defer eng.Close()

			query := strings.Join(args, " ")
			out, err := eng.Search(cmd.Context(), query, topN)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			printOutcome(cmd.OutOrStdout(), query, out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topN, "top", "n", 5, "number of videos to retrieve")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	cmd.Flags().StringVar(&catPath, "catalog", "", "catalog CSV (overrides CATALOG_PATH)")
	return cmd
}

func newPrecomputeCmd() *cobra.Command {
	var catPath string
	cmd := &cobra.Command{
		Use:   "precompute",
		Short: "Embed the catalog and save vectors to VECTOR_DB_PATH or DATABASE_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := engine.ConfigFromEnv()
			if catPath != "" {
				cfg.CatalogPath = catPath
			}
			eng := engine.New(cmd.Context(), cfg)
			defer eng.Close()

			n, err := eng.Precompute(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d records from %s\n", n, cfg.CatalogPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&catPath, "catalog", "", "catalog CSV (overrides CATALOG_PATH)")
	return cmd
}

// printOutcome renders an outcome for the terminal.
func printOutcome(w io.Writer, query string, o refine.Outcome) {
	switch o.Kind {
	case refine.KindNoneFound:
		fmt.Fprintf(w, "No relevant computer science resources found for %q.\n", query)
	case refine.KindGrouped:
		for _, c := range o.Categories {
			fmt.Fprintf(w, "## %s\n", c.Label)
			for _, r := range c.Entries {
				printRecord(w, r, "")
			}
			fmt.Fprintln(w)
		}
	case refine.KindUngrouped:
		for i, res := range o.Ranked {
			printRecord(w, res.Record, fmt.Sprintf("%d. [%.3f] ", i+1, res.Score))
		}
	}
}

func printRecord(w io.Writer, r catalog.Record, prefix string) {
	fmt.Fprintf(w, "%s%s (%s)\n", prefix, r.Name, r.Channel)
	fmt.Fprintf(w, "   %s\n", catalog.Snippet(r.Description))
	fmt.Fprintf(w, "   %s\n", r.Link)
}
