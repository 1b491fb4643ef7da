package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maypok86/otter"

	"github.com/mvp-joe/kernel-memory/internal/config"
	"github.com/mvp-joe/kernel-memory/internal/node"
)

// Nodes hands out opened nodes. The release func must be called once the
// caller is done with the node.
type Nodes interface {
	Acquire(ctx context.Context, id string, create bool) (*node.Node, func(), error)
	Close() error
}

// Opener opens one configured node.
type Opener func(ctx context.Context, cfg *config.NodeConfig, create bool) (*node.Node, error)

// NodeOpener returns an Opener calling node.Open with opts.
func NodeOpener(opts node.Options) Opener {
	return func(ctx context.Context, cfg *config.NodeConfig, create bool) (*node.Node, error) {
		o := opts
		o.Create = create
		return node.Open(ctx, cfg, o)
	}
}

// OnDemand opens a node for every acquisition and closes it on release.
// It suits one-shot CLI commands.
type OnDemand struct {
	cfg  *config.AppConfig
	open Opener
}

func NewOnDemand(cfg *config.AppConfig, open Opener) *OnDemand {
	return &OnDemand{cfg: cfg, open: open}
}

func (o *OnDemand) Acquire(ctx context.Context, id string, create bool) (*node.Node, func(), error) {
	nc := o.cfg.Node(id)
	if nc == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n, err := o.open(ctx, nc, create)
	if err != nil {
		return nil, nil, err
	}
	return n, func() { n.Close() }, nil
}

func (o *OnDemand) Close() error { return nil }

// pooledNode tracks users of a cached node so an evicted node is closed
// only after its last release.
type pooledNode struct {
	node *node.Node
	// created is set when the node was opened with create, so indexes
	// without files yet were built rather than skipped.
	created bool
	onClose func(*pooledNode)

	mu      sync.Mutex
	refs    int
	evicted bool
	closed  bool
}

// revive registers a user and clears an eviction still waiting on other
// users. It fails once the node is closed.
func (pn *pooledNode) revive() bool {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	if pn.closed {
		return false
	}
	pn.evicted = false
	pn.refs++
	return true
}

func (pn *pooledNode) release() {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	pn.refs--
	if pn.evicted && pn.refs == 0 {
		pn.closeLocked()
	}
}

// evict is called when the entry expires, is pushed out of the cache or
// is retired for a writable reopen.
func (pn *pooledNode) evict() {
	pn.mu.Lock()
	defer pn.mu.Unlock()
	pn.evicted = true
	if pn.refs == 0 {
		pn.closeLocked()
	}
}

func (pn *pooledNode) closeLocked() error {
	if pn.closed {
		return nil
	}
	pn.closed = true
	if pn.onClose != nil {
		pn.onClose(pn)
	}
	return pn.node.Close()
}

// Pool keeps opened nodes in an otter cache for long-running servers.
// A node idle for the TTL is evicted and closed once released.
type Pool struct {
	cfg   *config.AppConfig
	open  Opener
	cache otter.Cache[string, *pooledNode]

	// mu guards the maps only; opening happens under the per-node lock.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	live  map[string]*pooledNode
}

// NewPool creates a pool that closes a node ttl after its last acquisition.
func NewPool(cfg *config.AppConfig, open Opener, ttl time.Duration) (*Pool, error) {
	cache, err := otter.MustBuilder[string, *pooledNode](max(100, 10*len(cfg.Nodes))).
		WithTTL(ttl).
		DeletionListener(func(_ string, pn *pooledNode, cause otter.DeletionCause) {
			// Acquire re-sets the entry to refresh its TTL.
			if cause == otter.Replaced {
				return
			}
			pn.evict()
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create node pool: %w", err)
	}
	return &Pool{
		cfg:   cfg,
		open:  open,
		cache: cache,
		locks: make(map[string]*sync.Mutex),
		live:  make(map[string]*pooledNode),
	}, nil
}

func (p *Pool) Acquire(ctx context.Context, id string, create bool) (*node.Node, func(), error) {
	nc := p.cfg.Node(id)
	if nc == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}

	lock := p.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p.mu.Lock()
	pn := p.live[id]
	p.mu.Unlock()

	if pn != nil && pn.revive() {
		if !create || pn.created {
			p.cache.Set(id, pn)
			return pn.node, p.releaser(pn), nil
		}
		// Opened read-only: indexes missing on disk were skipped.
		pn.release()
		p.cache.Delete(id)
		pn.evict()
	}

	n, err := p.open(ctx, nc, create)
	if err != nil {
		return nil, nil, err
	}
	pn = &pooledNode{node: n, created: create, refs: 1, onClose: p.forget(id)}
	p.mu.Lock()
	p.live[id] = pn
	p.mu.Unlock()
	p.cache.Set(id, pn)
	return pn.node, p.releaser(pn), nil
}

func (p *Pool) lockFor(id string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[id] = lock
	}
	return lock
}

// forget drops a closed node from the live set unless it was replaced.
func (p *Pool) forget(id string) func(*pooledNode) {
	return func(pn *pooledNode) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.live[id] == pn {
			delete(p.live, id)
		}
	}
}

func (p *Pool) releaser(pn *pooledNode) func() {
	var once sync.Once
	return func() { once.Do(pn.release) }
}

// Close closes every pooled node regardless of outstanding users.
func (p *Pool) Close() error {
	p.mu.Lock()
	nodes := make([]*pooledNode, 0, len(p.live))
	for _, pn := range p.live {
		nodes = append(nodes, pn)
	}
	p.mu.Unlock()

	var errs []error
	for _, pn := range nodes {
		pn.mu.Lock()
		pn.evicted = true
		errs = append(errs, pn.closeLocked())
		pn.mu.Unlock()
	}
	p.cache.Close()
	return errors.Join(errs...)
}
