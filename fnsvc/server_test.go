package fnsvc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/google/go-cmp/cmp"
)

func newTestServer(store *fakeStore) (*Server, *http.ServeMux) {
	verifier := &fakeVerifier{tokens: map[string]*auth.Token{
		"admin-token": {UID: "admin", Claims: map[string]interface{}{"isAdmin": true}},
		"plain-token": {UID: "pleb", Claims: map[string]interface{}{"isAdmin": false}},
	}}
	s := NewServer(verifier, store, NewReconciler(&fakeClaims{}, store), NewLifecycle(store))
	mux := http.NewServeMux()
	s.Register(mux)
	return s, mux
}

func callableRequest(t *testing.T, path, token string, data interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"data": data})
	if err != nil {
		t.Fatalf("marshaling callable data: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(body)))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder, result interface{}) {
	t.Helper()
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *callableError  `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding callable response %q: %v", rr.Body.String(), err)
	}
	if envelope.Error != nil {
		t.Fatalf("callable failed: %s: %s", envelope.Error.Status, envelope.Error.Message)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		t.Fatalf("decoding callable result: %v", err)
	}
}

func TestCallableRequiresAdmin(t *testing.T) {
	store := newFakeStore()
	store.docs["a/b"] = []string{"a/b/doc1"}
	_, mux := newTestServer(store)

	for _, endpoint := range []string{"/listCollections", "/listDocuments", "/deleteCollection"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, callableRequest(t, endpoint, "plain-token", pathRequest{Path: "a/b"}))

		if rr.Code != http.StatusForbidden {
			t.Errorf("%s with non-admin token: status %d, want 403", endpoint, rr.Code)
		}
		var envelope struct {
			Error *callableError `json:"error"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil || envelope.Error == nil {
			t.Errorf("%s: expected structured error, got %q", endpoint, rr.Body.String())
			continue
		}
		if envelope.Error.Status != "permission-denied" {
			t.Errorf("%s: error status %q, want permission-denied", endpoint, envelope.Error.Status)
		}
		if !strings.Contains(envelope.Error.Message, string(PermissionIsAdmin)) {
			t.Errorf("%s: error message does not name the required permission: %q", endpoint, envelope.Error.Message)
		}
	}

	// The guard runs before any side effect.
	if store.pageCalls != 0 || len(store.batchDeletes) != 0 {
		t.Errorf("denied calls still touched the store: pages=%d batches=%d",
			store.pageCalls, len(store.batchDeletes))
	}

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, callableRequest(t, "/listCollections", "", pathRequest{Path: ""}))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status %d, want 401", rr.Code)
	}
}

func TestListCollectionsCallable(t *testing.T) {
	store := newFakeStore()
	store.collections[""] = []string{"private", "public"}
	store.collections["private/user"] = []string{"private/user/u1"}
	_, mux := newTestServer(store)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, callableRequest(t, "/listCollections", "admin-token", pathRequest{Path: ""}))
	var got []string
	decodeResult(t, rr, &got)
	if diff := cmp.Diff([]string{"private", "public"}, got); diff != "" {
		t.Errorf("root collections mismatch (-want +got):\n%s", diff)
	}

	// Trailing slash is normalized before hitting the store.
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, callableRequest(t, "/listCollections", "admin-token", pathRequest{Path: "private/user/"}))
	got = nil
	decodeResult(t, rr, &got)
	if diff := cmp.Diff([]string{"private/user/u1"}, got); diff != "" {
		t.Errorf("document collections mismatch (-want +got):\n%s", diff)
	}

	// Collection paths are rejected.
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, callableRequest(t, "/listCollections", "admin-token", pathRequest{Path: "private"}))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("collection path: status %d, want 400", rr.Code)
	}
}

func TestListDocumentsCallable(t *testing.T) {
	store := newFakeStore()
	for i := 1; i <= 30; i++ {
		store.docs["users"] = append(store.docs["users"], fmt.Sprintf("users/u%02d", i))
	}
	_, mux := newTestServer(store)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, callableRequest(t, "/listDocuments", "admin-token", listDocumentsRequest{Path: "users"}))
	var got []string
	decodeResult(t, rr, &got)
	if len(got) != defaultDocumentPage {
		t.Errorf("default page returned %d documents, want %d", len(got), defaultDocumentPage)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, callableRequest(t, "/listDocuments", "admin-token", listDocumentsRequest{Path: "users", Limit: 1000}))
	got = nil
	decodeResult(t, rr, &got)
	if len(got) != 30 {
		t.Errorf("capped page returned %d documents, want all 30", len(got))
	}

	// Document paths are rejected.
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, callableRequest(t, "/listDocuments", "admin-token", listDocumentsRequest{Path: "users/u01"}))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("document path: status %d, want 400", rr.Code)
	}
}

// 1200 documents delete in exactly three bounded batches, and the callable
// resolves true only after the last batch commits.
func TestDeleteCollectionBatches(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 1200; i++ {
		store.docs["a/b"] = append(store.docs["a/b"], fmt.Sprintf("a/b/doc%04d", i))
	}
	_, mux := newTestServer(store)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, callableRequest(t, "/deleteCollection", "admin-token", pathRequest{Path: "a/b"}))

	var done bool
	decodeResult(t, rr, &done)
	if !done {
		t.Error("deleteCollection resolved false")
	}

	if len(store.batchDeletes) != 3 {
		t.Fatalf("issued %d delete batches, want 3", len(store.batchDeletes))
	}
	wantSizes := []int{500, 500, 200}
	for i, batch := range store.batchDeletes {
		if len(batch) != wantSizes[i] {
			t.Errorf("batch %d deleted %d documents, want %d", i, len(batch), wantSizes[i])
		}
	}
	if remaining := len(store.docs["a/b"]); remaining != 0 {
		t.Errorf("%d documents left after delete", remaining)
	}
}

func TestPermissionsWrittenEndpoint(t *testing.T) {
	store := newFakeStore()
	_, mux := newTestServer(store)

	body := `{"uid":"u1","before":{"permissions":{"isAdmin":false}},"after":{"permissions":{"isAdmin":true}}}`
	req := httptest.NewRequest(http.MethodPost, "/events/permissions-written", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204; body %q", rr.Code, rr.Body.String())
	}
	if got := store.writesTo(AuthStatusDocPath); len(got) != 1 {
		t.Errorf("auth-status stamped %d times, want 1", len(got))
	}
}

func TestBeforeSignedInEndpoint(t *testing.T) {
	store := newFakeStore()
	_, mux := newTestServer(store)

	body := `{"data":{"uid":"u1","displayName":"Alice","email":"alice@example.com"}}`
	req := httptest.NewRequest(http.MethodPost, "/events/before-signed-in", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, want 200; body %q", rr.Code, rr.Body.String())
	}
	var override ProfileOverride
	if err := json.Unmarshal(rr.Body.Bytes(), &override); err != nil {
		t.Fatalf("decoding override: %v", err)
	}
	if override.DisplayName != "Alice" {
		t.Errorf("override display name %q, want %q", override.DisplayName, "Alice")
	}
	if got := store.writesTo(UserDetailsDocPath("u1")); len(got) != 1 {
		t.Errorf("details upserted %d times, want 1", len(got))
	}
}

func TestUserLifecycleEndpoints(t *testing.T) {
	store := newFakeStore()
	_, mux := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/events/user-created",
		strings.NewReader(`{"uid":"u1","displayName":"Alice"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("user-created: status %d, want 204", rr.Code)
	}
	if got := store.writesTo(PermissionsDocPath("u1")); len(got) != 1 {
		t.Errorf("user-created seeded permission document %d times, want 1", len(got))
	}

	req = httptest.NewRequest(http.MethodPost, "/events/user-deleted",
		strings.NewReader(`{"uid":"u1"}`))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("user-deleted: status %d, want 204", rr.Code)
	}
	if len(store.deletes) != 1 || store.deletes[0] != UserDetailsDocPath("u1") {
		t.Errorf("user-deleted deletes = %v, want only the details document", store.deletes)
	}
}
