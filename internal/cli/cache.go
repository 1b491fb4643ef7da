package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/kernel-memory/internal/cache"
)

// cacheCmd represents the cache command group
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the embeddings cache",
	Long: `Manage the embeddings cache shared by every vector index.

Available commands:
  info   - Show cache location and stats
  prune  - Delete entries older than a number of days`,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache location and stats",
	Args:  cobra.NoArgs,
	RunE:  runCacheInfo,
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old cache entries",
	Long: `Delete embeddings written more than --max-age-days days ago. Pruned vectors
are computed again on next use.`,
	Args: cobra.NoArgs,
	RunE: runCachePrune,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd, cachePruneCmd)
	cachePruneCmd.Flags().Int("max-age-days", cache.DefaultEvictionPolicy().MaxAgeDays, "delete entries older than this")
}

var errNoCache = errors.New("no embeddings cache configured")

type cacheInfo struct {
	Type       string `json:"type" yaml:"type"`
	Location   string `json:"location" yaml:"location"`
	Entries    int    `json:"entries" yaml:"entries"`
	AllowRead  bool   `json:"allowRead" yaml:"allowRead"`
	AllowWrite bool   `json:"allowWrite" yaml:"allowWrite"`
}

func openCache(cmd *cobra.Command) (*cache.EmbeddingsStore, *cacheInfo, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.EmbeddingsCache == nil {
		return nil, nil, errNoCache
	}
	c := cfg.EmbeddingsCache
	store, err := cache.OpenEmbeddingsStore(cmd.Context(), c)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embeddings cache: %w", err)
	}
	location := c.Path
	if location == "" {
		location = "(postgres)"
	}
	return store, &cacheInfo{Type: string(c.Type), Location: location, AllowRead: c.AllowRead, AllowWrite: c.AllowWrite}, nil
}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	store, info, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if info.Entries, err = store.Count(cmd.Context()); err != nil {
		return err
	}
	return newPrinter(cmd).print(info, func(w io.Writer) {
		printKV(w, "Cache Type", info.Type)
		printKV(w, "Cache Location", info.Location)
		printKV(w, "Entries", formatNumber(info.Entries))
		printKV(w, "Read", fmt.Sprint(info.AllowRead))
		printKV(w, "Write", fmt.Sprint(info.AllowWrite))
	})
}

func runCachePrune(cmd *cobra.Command, args []string) error {
	days, _ := cmd.Flags().GetInt("max-age-days")
	if days <= 0 {
		return errors.New("--max-age-days must be positive")
	}

	store, _, err := openCache(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.Evict(cmd.Context(), cache.EvictionPolicy{MaxAgeDays: days})
	if err != nil {
		return err
	}
	appLog.Info().Int64("evicted", res.Evicted).Int("remaining", res.Remaining).Msg("cache pruned")
	return newPrinter(cmd).print(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s Pruned %s entries, %s remaining (took %s)\n",
			styles.ok.Render("✓"), formatNumber(int(res.Evicted)), formatNumber(res.Remaining), res.Duration.Round(time.Millisecond))
	})
}

// formatNumber adds thousands separators.
func formatNumber(n int) string {
	s := fmt.Sprint(n)
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
