package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/heatsense-cli/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the artifact cache",
}

// -- cache stats --

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache occupancy per artifact kind",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		stats, err := c.Stats()
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}
		formatCacheStats(os.Stdout, stats)
		return nil
	},
}

// -- cache clear --

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached artifacts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		kindStr, _ := cmd.Flags().GetString("kind")
		kind := cache.Kind(kindStr)
		if kindStr != "" && !validKind(kind) {
			return eris.Errorf("unknown artifact kind: %s", kindStr)
		}
		if err := c.Clear(kind); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Cache cleared.")
		return nil
	},
}

// -- cache evict --

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Evict expired entries, then enforce the size limit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openCache()
		if err != nil {
			return err
		}
		expired, err := c.EvictExpired()
		if err != nil {
			return eris.Wrap(err, "evict expired")
		}
		oversize, err := c.EvictToSizeLimit()
		if err != nil {
			return eris.Wrap(err, "evict to size limit")
		}
		fmt.Fprintf(os.Stderr, "Evicted %d expired and %d over-limit entries.\n", expired, oversize)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().String("kind", "", "limit to one artifact kind (grid, correlation, hotspots, landcover, boundary)")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheEvictCmd)
	rootCmd.AddCommand(cacheCmd)
}

func openCache() (*cache.Store, error) {
	if cfg.Cache.Disabled {
		return nil, eris.New("cache is disabled in configuration")
	}
	return cache.New(cfg.Cache.Dir, cfg.Cache.MaxAge(), cfg.Cache.MaxSizeBytes)
}

func validKind(k cache.Kind) bool {
	for _, known := range cache.Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// formatCacheStats writes a tabular occupancy report to w.
func formatCacheStats(out io.Writer, stats cache.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tENTRIES\tSIZE")
	for _, kind := range cache.Kinds {
		ks := stats.ByKind[kind]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", kind, ks.Entries, humanBytes(ks.Bytes))
	}
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\t%s\n", stats.TotalEntries, humanBytes(stats.TotalBytes))
	_, _ = fmt.Fprintf(w, "\nHits: %d  Misses: %d\n", stats.Hits, stats.Misses)
	_ = w.Flush()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
