package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"techradar/internal/config"
	"techradar/internal/pipeline"
	"techradar/internal/source"
	"techradar/internal/store"
	"techradar/internal/trend"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "techradar",
	Short:   "Tech news trend radar",
	Long:    "TechRadar collects tech news from feeds and APIs, collapses duplicates, scores sentiment and impact, and tracks which topics are trending between runs.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(trendsCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("techradar", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/techradar/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, keyword tables, and credibility weights.")
		return nil
	},
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: fetch -> dedup -> enrich -> classify -> aggregate",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		result, runErr := pipeline.New(cfg, st).Run(context.Background())

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		if runErr != nil {
			return runErr
		}

		if len(result.TrendingTags) > 0 {
			fmt.Println("\nTrending:")
			for _, tag := range result.TrendingTags {
				fmt.Printf("  %-24s %3d items  %+.0f%%\n", tag.Name, tag.Count, tag.Delta)
			}
		}
		fmt.Printf("\nRun complete: %d stories from %d/%d sources.\n",
			result.CanonicalItems, result.SourcesOK, result.SourcesOK+result.SourcesFailed)
		return nil
	},
}

// --- sources command ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Check connectivity of every configured source",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second}

		ok := 0
		for _, desc := range cfg.Sources {
			adapter, err := source.New(desc, client)
			if err != nil {
				fmt.Printf("  FAIL  %-20s %v\n", desc.ID, err)
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second)
			items, err := adapter.Fetch(ctx)
			cancel()
			if err != nil {
				fmt.Printf("  FAIL  %-20s %v\n", desc.ID, err)
				continue
			}
			fmt.Printf("  OK    %-20s %d items\n", desc.ID, len(items))
			ok++
		}

		fmt.Printf("\n%d/%d sources reachable.\n", ok, len(cfg.Sources))
		if ok == 0 && len(cfg.Sources) > 0 {
			return fmt.Errorf("no sources reachable")
		}
		return nil
	},
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archive and snapshot status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.RunCount()
		if err != nil {
			return fmt.Errorf("counting runs: %w", err)
		}
		items, err := st.ItemCount()
		if err != nil {
			return fmt.Errorf("counting items: %w", err)
		}

		fmt.Println("Archive:")
		fmt.Printf("  Runs: %d\n", runs)
		fmt.Printf("  Items: %d\n", items)

		state := st.LoadPrevious()
		fmt.Println("\nSnapshot:")
		if state.WindowEnd.IsZero() {
			fmt.Println("  No snapshot yet. Run 'techradar run' first.")
			return nil
		}
		fmt.Printf("  Path: %s\n", st.StatePath())
		fmt.Printf("  Window: %s to %s\n",
			state.WindowStart.Format(time.RFC3339), state.WindowEnd.Format(time.RFC3339))
		fmt.Printf("  Tags tracked: %d\n", len(state.Tags))
		return nil
	},
}

// --- trends command ---

var trendsLimit int

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show the trending tags of the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		state := st.LoadPrevious()
		if state.WindowEnd.IsZero() {
			fmt.Println("No snapshot yet. Run 'techradar run' first.")
			return nil
		}

		ranked := trend.Trending(state, trendsLimit)
		fmt.Printf("Trending tags as of %s:\n\n", state.WindowEnd.Format(time.RFC3339))
		for i, tag := range ranked {
			fmt.Printf("  %2d. %-24s %3d items  %+.0f%%\n", i+1, tag.Name, tag.Count, tag.Delta)
		}
		return nil
	},
}

func init() {
	trendsCmd.Flags().IntVarP(&trendsLimit, "limit", "n", 10, "Number of tags to show")
}

func openStore() (*store.Store, error) {
	return store.Open(cfg.GetDataDir())
}
