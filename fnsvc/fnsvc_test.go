package fnsvc

// Shared in-memory fakes for the handler tests. Production wiring talks to
// Firestore and Firebase Auth; everything under test here goes through the
// narrow DocStore / ClaimsAdmin / TokenVerifier interfaces instead.

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
)

type storeWrite struct {
	path string
	data map[string]interface{}
}

type fakeStore struct {
	writes       []storeWrite
	deletes      []string
	collections  map[string][]string
	docs         map[string][]string
	pageCalls    int
	batchDeletes [][]string

	failWrites map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collections: map[string][]string{},
		docs:        map[string][]string{},
		failWrites:  map[string]error{},
	}
}

func (f *fakeStore) MergeSet(ctx context.Context, path string, data map[string]interface{}) error {
	if err := f.failWrites[path]; err != nil {
		return err
	}
	f.writes = append(f.writes, storeWrite{path: path, data: data})
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, path string) error {
	f.deletes = append(f.deletes, path)
	return nil
}

func (f *fakeStore) ListCollectionIDs(ctx context.Context, docPath string) ([]string, error) {
	return f.collections[docPath], nil
}

func (f *fakeStore) DocumentPage(ctx context.Context, collectionPath string, limit int) ([]string, error) {
	f.pageCalls++
	page := f.docs[collectionPath]
	if len(page) > limit {
		page = page[:limit]
	}
	return append([]string(nil), page...), nil
}

func (f *fakeStore) DeleteBatch(ctx context.Context, docPaths []string) error {
	f.batchDeletes = append(f.batchDeletes, docPaths)
	for _, p := range docPaths {
		for col, docs := range f.docs {
			for i, d := range docs {
				if d == p {
					f.docs[col] = append(docs[:i:i], docs[i+1:]...)
					break
				}
			}
		}
	}
	return nil
}

// writesTo returns the data of every MergeSet against path, in order.
func (f *fakeStore) writesTo(path string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, w := range f.writes {
		if w.path == path {
			out = append(out, w.data)
		}
	}
	return out
}

type claimsCall struct {
	uid    string
	claims map[string]interface{}
}

type fakeClaims struct {
	user *auth.UserRecord

	setCalls    []claimsCall
	revokeCalls []string

	setErr    error
	getErr    error
	revokeErr error
}

func (f *fakeClaims) GetUser(ctx context.Context, uid string) (*auth.UserRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.user != nil {
		return f.user, nil
	}
	return nil, fmt.Errorf("no user %q", uid)
}

func (f *fakeClaims) SetCustomUserClaims(ctx context.Context, uid string, claims map[string]interface{}) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls = append(f.setCalls, claimsCall{uid: uid, claims: claims})
	return nil
}

func (f *fakeClaims) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revokeCalls = append(f.revokeCalls, uid)
	return nil
}

type fakeVerifier struct {
	tokens map[string]*auth.Token
}

func (f *fakeVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if t, ok := f.tokens[idToken]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown token %q", idToken)
}

func boolPtr(b bool) *bool { return &b }

func permsDoc(isAdmin *bool) *PermissionsDoc {
	return &PermissionsDoc{Permissions: map[Permission]*bool{PermissionIsAdmin: isAdmin}}
}
