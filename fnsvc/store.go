package fnsvc

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Logical document layout.
const (
	// CountersDocPath holds the aggregate user counters.
	CountersDocPath = "private/user"
	// AuthStatusDocPath carries the shared last-permissions-modification
	// stamp.
	AuthStatusDocPath = "private/auth"
)

// UserDetailsDocPath is the denormalized profile mirror for a user.
func UserDetailsDocPath(uid string) string {
	return fmt.Sprintf("private/user/%s/details", uid)
}

// PermissionsDocPath is the per-user permission document.
func PermissionsDocPath(uid string) string {
	return fmt.Sprintf("private/auth/permissions/%s", uid)
}

// DocStore is the narrow Firestore surface the handlers need. Production
// uses FirestoreStore; tests inject an in-memory fake.
type DocStore interface {
	// MergeSet merges data into the document at path, creating it if
	// needed. Values may include firestore sentinels such as Increment.
	MergeSet(ctx context.Context, path string, data map[string]interface{}) error
	// Delete removes the document at path.
	Delete(ctx context.Context, path string) error
	// ListCollectionIDs lists the paths of the collections directly under
	// a document path, or the root collections when docPath is empty.
	ListCollectionIDs(ctx context.Context, docPath string) ([]string, error)
	// DocumentPage returns up to limit document paths from a collection.
	DocumentPage(ctx context.Context, collectionPath string, limit int) ([]string, error)
	// DeleteBatch deletes the given documents in one atomic batch.
	DeleteBatch(ctx context.Context, docPaths []string) error
}

// FirestoreStore implements DocStore against a live Firestore client.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) MergeSet(ctx context.Context, path string, data map[string]interface{}) error {
	if _, err := s.client.Doc(path).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("while writing %q: %w", path, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, path string) error {
	if _, err := s.client.Doc(path).Delete(ctx); err != nil {
		return fmt.Errorf("while deleting %q: %w", path, err)
	}
	return nil
}

func (s *FirestoreStore) ListCollectionIDs(ctx context.Context, docPath string) ([]string, error) {
	var it *firestore.CollectionIterator
	if docPath == "" {
		it = s.client.Collections(ctx)
	} else {
		it = s.client.Doc(docPath).Collections(ctx)
	}

	var paths []string
	for {
		col, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("while listing collections under %q: %w", docPath, err)
		}
		if docPath == "" {
			paths = append(paths, col.ID)
		} else {
			paths = append(paths, docPath+"/"+col.ID)
		}
	}
	return paths, nil
}

func (s *FirestoreStore) DocumentPage(ctx context.Context, collectionPath string, limit int) ([]string, error) {
	it := s.client.Collection(collectionPath).Limit(limit).Documents(ctx)
	defer it.Stop()

	var paths []string
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("while listing documents in %q: %w", collectionPath, err)
		}
		paths = append(paths, collectionPath+"/"+snap.Ref.ID)
	}
	return paths, nil
}

func (s *FirestoreStore) DeleteBatch(ctx context.Context, docPaths []string) error {
	batch := s.client.Batch()
	for _, p := range docPaths {
		batch.Delete(s.client.Doc(p))
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("while committing delete batch: %w", err)
	}
	return nil
}
