package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/superbom/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package index and HTTP response caches",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	cmd.AddCommand(c.cacheWarmCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var indexOnly, expired bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete cached index snapshots and HTTP responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}

			if expired {
				return pruneResponses(filepath.Join(dir, httpSubdir))
			}

			idx, err := newIndex(dir, c.Logger, IndexSource{}, nil)
			if err != nil {
				return err
			}
			if err := idx.Clear(); err != nil {
				return fmt.Errorf("clear index: %w", err)
			}
			printSuccess("Cleared index snapshots")
			printDetail("Directory: %s", idx.Dir())

			if indexOnly {
				return nil
			}
			responses, err := cache.NewFileCache(filepath.Join(dir, httpSubdir))
			if err != nil {
				return err
			}
			if err := responses.Clear(); err != nil {
				return fmt.Errorf("clear responses: %w", err)
			}
			printSuccess("Cleared HTTP responses")
			printDetail("Directory: %s", responses.Dir())
			return nil
		},
	}

	cmd.Flags().BoolVar(&indexOnly, "index-only", false, "keep cached HTTP responses")
	cmd.Flags().BoolVar(&expired, "expired", false, "only delete HTTP responses past their TTL")
	cmd.MarkFlagsMutuallyExclusive("index-only", "expired")
	return cmd
}

func pruneResponses(dir string) error {
	responses, err := cache.NewFileCache(dir)
	if err != nil {
		return err
	}
	n, err := responses.Prune(time.Now())
	if err != nil {
		return fmt.Errorf("prune responses: %w", err)
	}
	printSuccess("Removed %d expired responses", n)
	printDetail("Directory: %s", responses.Dir())
	return nil
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Println(dir)
			return nil
		},
	}
}

// cacheWarmCommand creates the "cache warm" subcommand, which downloads the
// snapshot of every configured channel and platform.
func (c *CLI) cacheWarmCommand() *cobra.Command {
	var channels, platforms []string

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Download index snapshots for all configured channels and platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadConfig(c.configPath, defaultEnvFile)
			if err != nil {
				return err
			}
			cfg, err := fc.indexConfig(c.Logger)
			if err != nil {
				return err
			}
			for _, ch := range channels {
				cfg.AddChannel(ch)
			}
			for _, pl := range platforms {
				cfg.AddPlatform(pl)
			}

			dir, err := cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}

			spin := newSpinnerWithContext(cmd.Context(), "Downloading snapshots...")
			idx, err := newIndex(dir, c.Logger, fc.Index, func(url string, received int64) {
				spin.SetMessage(fmt.Sprintf("Downloading %s (%s)", url, formatBytes(received)))
			})
			if err != nil {
				return err
			}

			prog := newProgress(c.Logger)
			spin.Start()
			err = idx.Warm(cmd.Context(), cfg)
			spin.Stop()
			if err != nil {
				printWarning("Some snapshots could not be downloaded")
				return err
			}
			prog.done("Warmed index")

			for _, ch := range cfg.Channels() {
				for _, pl := range cfg.Platforms() {
					if _, err := os.Stat(idx.Path(ch, pl)); err == nil {
						printFile(idx.Path(ch, pl))
					}
				}
			}
			printNextStep("Generate a BOM", "superbom generate .")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&channels, "channel", nil, "additional conda channel (repeatable)")
	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "additional conda platform (repeatable)")
	return cmd
}
