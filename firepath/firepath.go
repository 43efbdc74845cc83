// Package firepath classifies and resolves slash-delimited Firestore paths.
//
// A path addresses a node in the hierarchical document store: an even number
// of segments addresses a document, an odd number addresses a collection, and
// the empty string addresses the virtual root container.
package firepath

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath indicates a path that cannot address any Firestore node,
// such as one containing an empty segment ("a//b") or a reserved segment.
var ErrInvalidPath = errors.New("invalid firestore path")

// Kind distinguishes collection references from document references.
type Kind int

const (
	KindCollection Kind = iota
	KindDocument
)

func (k Kind) String() string {
	if k == KindDocument {
		return "document"
	}
	return "collection"
}

// Reference is a resolved, typed handle to a collection or document location.
// A document's parent is always a collection reference one segment shorter;
// a collection's parent is always a document reference one segment shorter.
// The root has no Reference; it is represented by nil.
type Reference struct {
	Kind   Kind
	Path   string
	ID     string
	Parent *Reference
}

// Classification reports how a raw path string was interpreted. Exactly one
// of the three booleans is true.
type Classification struct {
	ValidatedPath    string
	IsRootPath       bool
	IsDocumentPath   bool
	IsCollectionPath bool
}

// Classify trims whitespace, strips one trailing slash, and classifies the
// result by segment parity. It does not validate segment content; use Resolve
// for that.
func Classify(raw string) Classification {
	p := strings.TrimSpace(raw)
	p = strings.TrimSuffix(p, "/")

	c := Classification{ValidatedPath: p}
	if p == "" {
		c.IsRootPath = true
		return c
	}
	if len(strings.Split(p, "/"))%2 == 0 {
		c.IsDocumentPath = true
	} else {
		c.IsCollectionPath = true
	}
	return c
}

// Resolve classifies raw and builds the parent-linked reference chain for it.
// The root path yields a nil reference. Resolving a validated path again
// yields a reference with an identical Path, so Path is usable as a cache
// key.
//
// Unlike the classifier, Resolve checks segment content: empty segments and
// reserved segments fail with ErrInvalidPath before any reference is built.
func Resolve(raw string) (*Reference, Classification, error) {
	c := Classify(raw)
	if c.IsRootPath {
		return nil, c, nil
	}

	segments := strings.Split(c.ValidatedPath, "/")
	for _, seg := range segments {
		if err := checkSegment(seg); err != nil {
			return nil, c, err
		}
	}

	var ref *Reference
	for i, seg := range segments {
		kind := KindCollection
		if i%2 == 1 {
			kind = KindDocument
		}
		ref = &Reference{
			Kind:   kind,
			Path:   strings.Join(segments[:i+1], "/"),
			ID:     seg,
			Parent: ref,
		}
	}
	return ref, c, nil
}

func checkSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty path segment", ErrInvalidPath)
	}
	if seg == "." || seg == ".." {
		return fmt.Errorf("%w: segment %q is reserved", ErrInvalidPath, seg)
	}
	if strings.HasPrefix(seg, "__") && strings.HasSuffix(seg, "__") {
		return fmt.Errorf("%w: segment %q uses the reserved __name__ form", ErrInvalidPath, seg)
	}
	return nil
}
