// ABOUTME: Cache wrapper (C5): dgraph-io/ristretto/v2-backed result cache with TTL and
// ABOUTME: stale-while-revalidate; SHA-256 fingerprints the deterministic key when no key template is given

package fault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/weftrun/weft/internal/condition"
	"github.com/weftrun/weft/internal/runtime"
	"github.com/weftrun/weft/internal/task"
	"github.com/weftrun/weft/internal/template"
	"github.com/weftrun/weft/pkg/types"
)

// cacheEntry is what's stored per key. ristretto handles hard eviction; the
// TTL/stale bookkeeping here tracks freshness within that lifetime so a stale
// entry can still be served while a refresh runs (§4.5).
type cacheEntry struct {
	output   map[string]interface{}
	storedAt time.Time
	ttl      time.Duration
	staleTTL time.Duration
}

func (e *cacheEntry) age() time.Duration { return time.Since(e.storedAt) }
func (e *cacheEntry) isFresh() bool      { return e.age() < e.ttl }
func (e *cacheEntry) isServable() bool   { return e.age() < e.ttl+e.staleTTL }

// Cache is a shared, execution-scoped (or process-scoped — it is safe to
// reuse across executions since keys are fully qualified) result cache.
type Cache struct {
	store *ristretto.Cache[string, *cacheEntry]

	refreshMu     sync.Mutex
	refreshingKey map[string]bool
}

// NewCache builds a ristretto-backed cache store.
func NewCache() (*Cache, error) {
	store, err := ristretto.NewCache(&ristretto.Config[string, *cacheEntry]{
		NumCounters: 1e7,
		MaxCost:     1 << 28,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("fault: building cache store: %w", err)
	}
	return &Cache{store: store, refreshingKey: make(map[string]bool)}, nil
}

// cacheExecutor gates reads/writes around inner per spec.
type cacheExecutor struct {
	inner      task.Executor
	cache      *Cache
	spec       types.CacheSpec
	taskSpecID string
	taskSpec   *types.TaskSpec
}

// WithCache wraps inner with caching from spec (nil disables caching). taskSpecID
// and taskSpec are used to build the deterministic key when spec has no KeyTemplate.
func WithCache(inner task.Executor, cache *Cache, taskSpecID string, taskSpec *types.TaskSpec, spec *types.CacheSpec) task.Executor {
	if spec == nil || !spec.Enabled {
		return inner
	}
	return &cacheExecutor{inner: inner, cache: cache, spec: *spec, taskSpecID: taskSpecID, taskSpec: taskSpec}
}

func (c *cacheExecutor) Execute(ctx context.Context, rc *runtime.Context, resolvedInput map[string]interface{}) (map[string]interface{}, error) {
	if c.spec.BypassWhen != "" {
		res := condition.Evaluate(c.spec.BypassWhen, rc)
		if res.Err == nil && res.ShouldExecute {
			return c.inner.Execute(ctx, rc, resolvedInput)
		}
	}

	if !c.methodCacheable(rc) {
		return c.inner.Execute(ctx, rc, resolvedInput)
	}

	key, err := c.cacheKey(rc, resolvedInput)
	if err != nil {
		return nil, err
	}

	if entry, ok := c.cache.store.Get(key); ok {
		if entry.isFresh() {
			return entry.output, nil
		}
		if entry.isServable() {
			c.triggerRefresh(key, ctx, rc, resolvedInput)
			return entry.output, nil
		}
	}

	out, execErr := c.inner.Execute(ctx, rc, resolvedInput)
	c.store(key, out, execErr)
	return out, execErr
}

// triggerRefresh kicks off a single background re-execution per key; a
// refresh already in flight for key is not duplicated.
func (c *cacheExecutor) triggerRefresh(key string, ctx context.Context, rc *runtime.Context, resolvedInput map[string]interface{}) {
	c.cache.refreshMu.Lock()
	if c.cache.refreshingKey[key] {
		c.cache.refreshMu.Unlock()
		return
	}
	c.cache.refreshingKey[key] = true
	c.cache.refreshMu.Unlock()

	go func() {
		defer func() {
			c.cache.refreshMu.Lock()
			delete(c.cache.refreshingKey, key)
			c.cache.refreshMu.Unlock()
		}()
		out, execErr := c.inner.Execute(context.Background(), rc, resolvedInput)
		if execErr == nil {
			c.store(key, out, nil)
		}
	}()
}

func (c *cacheExecutor) store(key string, out map[string]interface{}, execErr error) {
	if execErr != nil && c.spec.CacheOnlySuccess {
		return
	}
	ttl := c.spec.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c.cache.store.SetWithTTL(key, &cacheEntry{
		output:   out,
		storedAt: time.Now(),
		ttl:      ttl,
		staleTTL: c.spec.StaleTTL,
	}, 1, ttl+c.spec.StaleTTL)
	c.cache.store.Wait()
}

// methodCacheable applies the cacheableMethods gate; it only constrains http
// task specs (the only kind with a meaningful "method"). Other kinds, and
// http specs with no configured allow-list, are always cacheable.
func (c *cacheExecutor) methodCacheable(rc *runtime.Context) bool {
	if len(c.spec.CacheableMethods) == 0 {
		return true
	}
	if c.taskSpec == nil || c.taskSpec.Kind != types.KindHTTP || c.taskSpec.HTTP == nil {
		return true
	}
	method, err := template.Resolve(c.taskSpec.HTTP.Method, rc)
	if err != nil {
		return true
	}
	ms := fmt.Sprintf("%v", method)
	for _, allowed := range c.spec.CacheableMethods {
		if strings.EqualFold(ms, allowed) {
			return true
		}
	}
	return false
}

// cacheKey resolves spec.KeyTemplate if set, otherwise composes the
// deterministic "taskRef | method | URL | SHA-256(body)" key for http specs,
// or "taskRef | SHA-256(json(payload))" for transform/inline specs where no
// method/URL/body triple exists.
func (c *cacheExecutor) cacheKey(rc *runtime.Context, resolvedInput map[string]interface{}) (string, error) {
	if c.spec.KeyTemplate != "" {
		v, err := template.Resolve(c.spec.KeyTemplate, rc)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v", v), nil
	}

	if c.taskSpec != nil && c.taskSpec.Kind == types.KindHTTP && c.taskSpec.HTTP != nil {
		method, _ := template.Resolve(c.taskSpec.HTTP.Method, rc)
		url, _ := template.Resolve(c.taskSpec.HTTP.URL, rc)
		body, _ := template.Resolve(c.taskSpec.HTTP.Body, rc)
		sum := sha256.Sum256([]byte(fmt.Sprintf("%v", body)))
		return fmt.Sprintf("%s|%v|%v|%s", c.taskSpecID, method, url, hex.EncodeToString(sum[:])), nil
	}

	var payload interface{} = resolvedInput
	if c.taskSpec != nil && c.taskSpec.Kind == types.KindTransform && c.taskSpec.Transform != nil {
		v, _ := template.Resolve(c.taskSpec.Transform.Input, rc)
		payload = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewConfigurationError("cache: unable to fingerprint task payload: " + err.Error())
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%s|%s", c.taskSpecID, hex.EncodeToString(sum[:])), nil
}
