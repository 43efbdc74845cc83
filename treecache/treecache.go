// Package treecache maintains the navigable node tree backing the database
// browser: a mapping from validated path to node, populated on demand as the
// navigation cursor moves through the store.
package treecache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"firepanel/firepath"
)

// DefaultDocumentPageSize bounds how many documents a single
// ListChildDocuments call fetches.
const DefaultDocumentPageSize = 10

var (
	ErrNotListableForCollections = errors.New("path cannot list child collections")
	ErrNotListableForDocuments   = errors.New("path cannot list child documents")
)

// Lister is the remote listing collaborator: it answers "what collections
// live under this document (or the root)" and "what documents live in this
// collection".
type Lister interface {
	ListCollections(ctx context.Context, path string) ([]string, error)
	ListDocuments(ctx context.Context, path string, limit int) ([]string, error)
}

// Node is a single cached tree entry. Ref is nil for the root node. Children
// holds the last listed (or opportunistically discovered) child references.
//
// Nodes are owned by the Cache; callers must treat them as read-only.
type Node struct {
	Ref       *firepath.Reference
	Children  []*firepath.Reference
	IsLoading bool
}

func (n *Node) addChild(child *firepath.Reference) {
	for _, c := range n.Children {
		if c.Path == child.Path {
			return
		}
	}
	n.Children = append(n.Children, child)
}

// Cache maps validated paths to nodes. Entries are created lazily and never
// evicted within a session; staleness is resolved by re-listing, not by
// invalidation.
type Cache struct {
	lister   Lister
	pageSize int

	mu    sync.Mutex
	nodes map[string]*Node
}

func New(lister Lister) *Cache {
	return &Cache{
		lister:   lister,
		pageSize: DefaultDocumentPageSize,
		nodes:    map[string]*Node{},
	}
}

// SetDocumentPageSize overrides the page bound used by ListChildDocuments.
func (c *Cache) SetDocumentPageSize(n int) {
	if n > 0 {
		c.pageSize = n
	}
}

// Node returns the cached node for a validated path, if present.
func (c *Cache) Node(path string) (*Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[path]
	return n, ok
}

// Len reports how many nodes the cache currently holds.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// EnsureAncestorChain guarantees that a node exists for path and for every
// ancestor up to the root, each populated at minimum with its reference. Each
// parent's children list opportunistically gains the child that led to it;
// that denormalization is best-effort, not authoritative.
//
// The chain is built with an explicit leaf-to-root loop, terminating at the
// nil (root) parent.
func (c *Cache) EnsureAncestorChain(path string) (*Node, error) {
	ref, _, err := firepath.Resolve(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureChainLocked(ref), nil
}

func (c *Cache) ensureChainLocked(leaf *firepath.Reference) *Node {
	var leafNode *Node
	var child *firepath.Reference

	cur := leaf
	for {
		key := ""
		if cur != nil {
			key = cur.Path
		}
		node, ok := c.nodes[key]
		if !ok {
			node = &Node{Ref: cur}
			c.nodes[key] = node
		}
		if leafNode == nil {
			leafNode = node
		}
		if child != nil {
			node.addChild(child)
		}
		if cur == nil {
			return leafNode
		}
		child = cur
		cur = cur.Parent
	}
}

// ListChildCollections populates the node's children with the collection
// references under a root or document path. Concurrent calls for the same
// path are not de-duplicated; the last write to the children list wins.
func (c *Cache) ListChildCollections(ctx context.Context, path string) (*Node, error) {
	ref, cls, err := firepath.Resolve(path)
	if err != nil {
		return nil, err
	}
	if cls.IsCollectionPath {
		return nil, fmt.Errorf("%w: %q", ErrNotListableForCollections, path)
	}

	node := c.beginListing(ref)
	paths, err := c.lister.ListCollections(ctx, cls.ValidatedPath)
	return c.finishListing(node, paths, err)
}

// ListChildDocuments populates the node's children with up to one page of
// document references under a collection path.
func (c *Cache) ListChildDocuments(ctx context.Context, path string) (*Node, error) {
	ref, cls, err := firepath.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !cls.IsCollectionPath {
		return nil, fmt.Errorf("%w: %q", ErrNotListableForDocuments, path)
	}

	node := c.beginListing(ref)
	paths, err := c.lister.ListDocuments(ctx, cls.ValidatedPath, c.pageSize)
	return c.finishListing(node, paths, err)
}

func (c *Cache) beginListing(ref *firepath.Reference) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	node := c.ensureChainLocked(ref)
	node.IsLoading = true
	return node
}

func (c *Cache) finishListing(node *Node, childPaths []string, listErr error) (*Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node.IsLoading = false
	if listErr != nil {
		return nil, fmt.Errorf("while listing children: %w", listErr)
	}

	children := make([]*firepath.Reference, 0, len(childPaths))
	for _, p := range childPaths {
		ref, _, err := firepath.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("while resolving listed child %q: %w", p, err)
		}
		children = append(children, ref)
	}
	node.Children = children
	return node, nil
}
