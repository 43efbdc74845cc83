package fnsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"firepanel/firepath"

	"firebase.google.com/go/v4/auth"
	"github.com/golang/glog"
)

// Batch size for recursive collection deletes. Bounded so a large collection
// never rides in one oversized commit.
const deleteBatchSize = 500

// Page bounds for the listDocuments callable.
const (
	defaultDocumentPage = 10
	maxDocumentPage     = 100
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnauthenticated  = errors.New("unauthenticated")
)

// TokenVerifier validates a client ID token and returns its decoded claims.
// *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Server exposes the callable RPCs and trigger entry points over HTTP.
//
// Callables speak the https.onCall wire shape: POST {"data": ...} with a
// Bearer ID token, answered by {"result": ...} or {"error": {...}}. Trigger
// endpoints receive the event payload the hosting platform delivers.
type Server struct {
	verifier   TokenVerifier
	store      DocStore
	reconciler *Reconciler
	lifecycle  *Lifecycle
}

func NewServer(verifier TokenVerifier, store DocStore, reconciler *Reconciler, lifecycle *Lifecycle) *Server {
	return &Server{
		verifier:   verifier,
		store:      store,
		reconciler: reconciler,
		lifecycle:  lifecycle,
	}
}

func (s *Server) Register(m *http.ServeMux) {
	m.HandleFunc("/listCollections", s.listCollectionsHandler)
	m.HandleFunc("/listDocuments", s.listDocumentsHandler)
	m.HandleFunc("/deleteCollection", s.deleteCollectionHandler)

	m.HandleFunc("/events/user-created", s.userCreatedHandler)
	m.HandleFunc("/events/user-deleted", s.userDeletedHandler)
	m.HandleFunc("/events/before-created", s.beforeCreatedHandler)
	m.HandleFunc("/events/before-signed-in", s.beforeSignedInHandler)
	m.HandleFunc("/events/permissions-written", s.permissionsWrittenHandler)
}

//
// Callable protocol plumbing.
//

type callableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeCallableResult(w http.ResponseWriter, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"result": result}); err != nil {
		glog.Errorf("Failed to encode callable result: %v", err)
	}
}

func writeCallableError(w http.ResponseWriter, httpStatus int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"error": callableError{Status: status, Message: message},
	}); err != nil {
		glog.Errorf("Failed to encode callable error: %v", err)
	}
}

func decodeCallableData(r *http.Request, data interface{}) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("while decoding callable envelope: %w", err)
	}
	if len(envelope.Data) == 0 {
		return errors.New("callable envelope has no data")
	}
	if err := json.Unmarshal(envelope.Data, data); err != nil {
		return fmt.Errorf("while decoding callable data: %w", err)
	}
	return nil
}

// requirePermission authenticates the caller and checks the named permission
// claim before any side effect is performed.
func (s *Server) requirePermission(ctx context.Context, r *http.Request, p Permission) (*auth.Token, error) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	token, err := s.verifier.VerifyIDToken(ctx, strings.TrimPrefix(header, prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if granted, _ := token.Claims[string(p)].(bool); !granted {
		return nil, fmt.Errorf("%w: user %s must have the %q permission to call this function",
			ErrPermissionDenied, token.UID, p)
	}
	return token, nil
}

func (s *Server) guardCallable(w http.ResponseWriter, r *http.Request, p Permission) bool {
	if r.Method != http.MethodPost {
		writeCallableError(w, http.StatusMethodNotAllowed, "invalid-argument", "callables must be invoked with POST")
		return false
	}
	if _, err := s.requirePermission(r.Context(), r, p); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			writeCallableError(w, http.StatusForbidden, "permission-denied", err.Error())
		} else {
			writeCallableError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		}
		return false
	}
	return true
}

//
// Callables.
//

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) listCollectionsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.guardCallable(w, r, PermissionIsAdmin) {
		return
	}

	var req pathRequest
	if err := decodeCallableData(r, &req); err != nil {
		writeCallableError(w, http.StatusBadRequest, "invalid-argument", err.Error())
		return
	}

	_, cls, err := firepath.Resolve(req.Path)
	if err != nil || cls.IsCollectionPath {
		writeCallableError(w, http.StatusBadRequest, "invalid-argument",
			fmt.Sprintf("path %q does not address a document or the root", req.Path))
		return
	}

	paths, err := s.store.ListCollectionIDs(r.Context(), cls.ValidatedPath)
	if err != nil {
		glog.Errorf("listCollections(%q) failed: %v", req.Path, err)
		writeCallableError(w, http.StatusInternalServerError, "internal", "failed to list collections")
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeCallableResult(w, paths)
}

type listDocumentsRequest struct {
	Path  string `json:"path"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) listDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.guardCallable(w, r, PermissionIsAdmin) {
		return
	}

	var req listDocumentsRequest
	if err := decodeCallableData(r, &req); err != nil {
		writeCallableError(w, http.StatusBadRequest, "invalid-argument", err.Error())
		return
	}

	_, cls, err := firepath.Resolve(req.Path)
	if err != nil || !cls.IsCollectionPath {
		writeCallableError(w, http.StatusBadRequest, "invalid-argument",
			fmt.Sprintf("path %q does not address a collection", req.Path))
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultDocumentPage
	}
	if limit > maxDocumentPage {
		limit = maxDocumentPage
	}

	paths, err := s.store.DocumentPage(r.Context(), cls.ValidatedPath, limit)
	if err != nil {
		glog.Errorf("listDocuments(%q) failed: %v", req.Path, err)
		writeCallableError(w, http.StatusInternalServerError, "internal", "failed to list documents")
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeCallableResult(w, paths)
}

func (s *Server) deleteCollectionHandler(w http.ResponseWriter, r *http.Request) {
	if !s.guardCallable(w, r, PermissionIsAdmin) {
		return
	}

	var req pathRequest
	if err := decodeCallableData(r, &req); err != nil {
		writeCallableError(w, http.StatusBadRequest, "invalid-argument", err.Error())
		return
	}

	_, cls, err := firepath.Resolve(req.Path)
	if err != nil || !cls.IsCollectionPath {
		writeCallableError(w, http.StatusBadRequest, "invalid-argument",
			fmt.Sprintf("path %q does not address a collection", req.Path))
		return
	}

	if err := s.deleteCollection(r.Context(), cls.ValidatedPath); err != nil {
		glog.Errorf("deleteCollection(%q) failed: %v", req.Path, err)
		writeCallableError(w, http.StatusInternalServerError, "internal", "failed to delete collection")
		return
	}
	writeCallableResult(w, true)
}

// deleteCollection removes every document in a collection in bounded batches,
// looping until a page comes back empty. Subcollection documents are left to
// their own delete calls, matching the callable's recursive client-driven
// contract.
func (s *Server) deleteCollection(ctx context.Context, path string) error {
	for {
		page, err := s.store.DocumentPage(ctx, path, deleteBatchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := s.store.DeleteBatch(ctx, page); err != nil {
			return err
		}
	}
}

//
// Trigger entry points.
//

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, fmt.Sprintf("bad event payload: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) userCreatedHandler(w http.ResponseWriter, r *http.Request) {
	var u UserProfile
	if !decodeJSONBody(w, r, &u) {
		return
	}
	s.lifecycle.AccountCreated(r.Context(), u)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) userDeletedHandler(w http.ResponseWriter, r *http.Request) {
	var u UserProfile
	if !decodeJSONBody(w, r, &u) {
		return
	}
	s.lifecycle.AccountDeleted(r.Context(), u)
	w.WriteHeader(http.StatusNoContent)
}

type authBlockingEvent struct {
	Data UserProfile `json:"data"`
}

func (s *Server) beforeCreatedHandler(w http.ResponseWriter, r *http.Request) {
	s.blockingHandler(w, r, s.lifecycle.BeforeCreate)
}

func (s *Server) beforeSignedInHandler(w http.ResponseWriter, r *http.Request) {
	s.blockingHandler(w, r, s.lifecycle.BeforeSignIn)
}

func (s *Server) blockingHandler(w http.ResponseWriter, r *http.Request, hook func(context.Context, UserProfile) (*ProfileOverride, error)) {
	var event authBlockingEvent
	if !decodeJSONBody(w, r, &event) {
		return
	}

	override, err := hook(r.Context(), event.Data)
	if err != nil {
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(override); err != nil {
		glog.Errorf("Failed to encode blocking hook response: %v", err)
	}
}

type permissionsWrittenEvent struct {
	UID    string          `json:"uid"`
	Before *PermissionsDoc `json:"before"`
	After  *PermissionsDoc `json:"after"`
}

func (s *Server) permissionsWrittenHandler(w http.ResponseWriter, r *http.Request) {
	var event permissionsWrittenEvent
	if !decodeJSONBody(w, r, &event) {
		return
	}
	if event.UID == "" {
		http.Error(w, "event is missing uid", http.StatusBadRequest)
		return
	}

	if err := s.reconciler.HandleWrite(r.Context(), event.UID, event.Before, event.After); err != nil {
		// Signal the trigger system to redeliver.
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
