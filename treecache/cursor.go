package treecache

import (
	"context"
	"sync"

	"firepanel/firepath"

	"github.com/golang/glog"
)

// PathStore persists the last navigation path across sessions, namespaced by
// project ID.
type PathStore interface {
	LastPath(projectID string) (path string, ok bool, err error)
	SetLastPath(projectID, path string) error
}

// Cursor is the single current-path value of the browser. Subscribers get
// replay-latest semantics: a newly attached subscriber immediately receives
// the current value.
type Cursor struct {
	cache     *Cache
	store     PathStore
	projectID string

	mu      sync.Mutex
	path    string
	subs    map[int]func(path string)
	nextSub int
}

// NewCursor restores the last persisted path (if any) as the initial value.
// Restoration does not trigger listing; call SetPath to do that.
func NewCursor(cache *Cache, store PathStore, projectID string) *Cursor {
	c := &Cursor{
		cache:     cache,
		store:     store,
		projectID: projectID,
		subs:      map[int]func(string){},
	}
	if store != nil {
		path, ok, err := store.LastPath(projectID)
		if err != nil {
			glog.Errorf("Failed to restore last navigation path: %v", err)
		} else if ok {
			c.path = path
		}
	}
	return c
}

// Path returns the current cursor value.
func (c *Cursor) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Subscribe registers fn for cursor changes, immediately delivers the current
// value, and returns an unsubscribe func.
func (c *Cursor) Subscribe(fn func(path string)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	current := c.path
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// SetPath moves the cursor. An invalid path aborts with no cursor or cache
// mutation. A non-canonical path (trailing slash, stray whitespace) is
// published as-is and then immediately re-entered with its canonical form,
// costing one redundant notification cycle; the canonical form is a fixed
// point of normalization, so the recursion terminates. A canonical path
// ensures the ancestor chain and triggers the list operation matching its
// classification.
func (c *Cursor) SetPath(ctx context.Context, raw string) error {
	_, cls, err := firepath.Resolve(raw)
	if err != nil {
		return err
	}

	c.publish(raw)

	if cls.ValidatedPath != raw {
		return c.SetPath(ctx, cls.ValidatedPath)
	}

	if c.store != nil {
		if err := c.store.SetLastPath(c.projectID, cls.ValidatedPath); err != nil {
			glog.Errorf("Failed to persist navigation path %q: %v", cls.ValidatedPath, err)
		}
	}

	if _, err := c.cache.EnsureAncestorChain(cls.ValidatedPath); err != nil {
		return err
	}

	if cls.IsCollectionPath {
		_, err = c.cache.ListChildDocuments(ctx, cls.ValidatedPath)
	} else {
		_, err = c.cache.ListChildCollections(ctx, cls.ValidatedPath)
	}
	return err
}

func (c *Cursor) publish(path string) {
	c.mu.Lock()
	c.path = path
	fns := make([]func(string), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(path)
	}
}
