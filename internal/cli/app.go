package cli

import (
	"context"
	"time"

	"github.com/mvp-joe/kernel-memory/internal/cache"
	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/memory"
	"github.com/mvp-joe/kernel-memory/internal/metrics"
	"github.com/mvp-joe/kernel-memory/internal/node"
)

// poolTTL bounds how long long-running commands keep an idle node open.
const poolTTL = 10 * time.Minute

// loadConfig loads the node configuration named by the settings, creating
// the default file on first use.
func loadConfig() (*config.AppConfig, error) {
	return config.NewLoader(settings.ConfigPath).Load()
}

type serviceOptions struct {
	// pooled keeps nodes open between requests.
	pooled  bool
	metrics *metrics.Metrics
}

// openService loads the configuration and builds the memory service. The
// returned func releases the service and the embeddings cache.
func openService(ctx context.Context, opts serviceOptions) (*memory.Service, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	nodeOpts := node.Options{Logger: appLog.Logger}
	var store *cache.EmbeddingsStore
	if cfg.EmbeddingsCache != nil {
		store, err = cache.OpenEmbeddingsStore(ctx, cfg.EmbeddingsCache)
		if err != nil {
			appLog.Warn().Err(err).Msg("embeddings cache unavailable, continuing without it")
			store = nil
		} else {
			nodeOpts.Cache = store
		}
	}

	open := memory.NodeOpener(nodeOpts)
	var nodes memory.Nodes = memory.NewOnDemand(cfg, open)
	if opts.pooled {
		pool, err := memory.NewPool(cfg, open, poolTTL)
		if err != nil {
			if store != nil {
				store.Close()
			}
			return nil, nil, err
		}
		nodes = pool
	}

	svc := memory.NewService(cfg, nodes, memory.Options{Logger: appLog.Logger, Metrics: opts.metrics})
	closeFn := func() {
		if err := svc.Close(); err != nil {
			appLog.Warn().Err(err).Msg("failed to close nodes")
		}
		if store != nil {
			store.Close()
		}
	}
	return svc, closeFn, nil
}
