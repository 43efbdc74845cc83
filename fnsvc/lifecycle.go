package fnsvc

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/golang/glog"
)

// UserProfile is the identity-provider view of an account, as delivered by
// auth lifecycle events and blocking hooks.
type UserProfile struct {
	UID           string                 `json:"uid"`
	DisplayName   string                 `json:"displayName,omitempty"`
	Email         string                 `json:"email,omitempty"`
	PhotoURL      string                 `json:"photoURL,omitempty"`
	EmailVerified bool                   `json:"emailVerified,omitempty"`
	Disabled      bool                   `json:"disabled,omitempty"`
	CustomClaims  map[string]interface{} `json:"customClaims,omitempty"`
}

// ProfileOverride is the response of a blocking hook. Fields set here replace
// the corresponding fields on the identity assertion before the auth flow
// proceeds.
type ProfileOverride struct {
	DisplayName   string                 `json:"displayName,omitempty"`
	PhotoURL      string                 `json:"photoUrl,omitempty"`
	EmailVerified bool                   `json:"emailVerified,omitempty"`
	Disabled      bool                   `json:"disabled,omitempty"`
	CustomClaims  map[string]interface{} `json:"customClaims,omitempty"`
}

// Lifecycle mirrors identity-provider account events into Firestore: a
// details document per user plus aggregate counters. Every mirror write is
// independently best-effort; the account itself has already committed
// upstream, so a partial failure here must never block the flow.
type Lifecycle struct {
	store DocStore
	now   func() time.Time
}

func NewLifecycle(store DocStore) *Lifecycle {
	return &Lifecycle{store: store, now: time.Now}
}

func (l *Lifecycle) detailsData(u UserProfile) map[string]interface{} {
	now := l.now()
	return map[string]interface{}{
		"uid":         u.UID,
		"created":     now,
		"modified":    now,
		"displayName": u.DisplayName,
		"email":       u.Email,
		"photoURL":    u.PhotoURL,
	}
}

// AccountCreated seeds the details mirror, the permission document (no
// permissions granted), and the aggregate counters.
func (l *Lifecycle) AccountCreated(ctx context.Context, u UserProfile) {
	if err := l.store.MergeSet(ctx, UserDetailsDocPath(u.UID), l.detailsData(u)); err != nil {
		glog.Errorf("Failed to seed details document for %s: %v", u.UID, err)
	}

	falseAdmin := false
	perms := &PermissionsDoc{
		Permissions: map[Permission]*bool{PermissionIsAdmin: &falseAdmin},
	}
	if err := l.store.MergeSet(ctx, PermissionsDocPath(u.UID), map[string]interface{}{
		"permissions": EffectivePermissions(perms),
		"createdAt":   l.now(),
		"displayName": u.DisplayName,
		"email":       u.Email,
		"uid":         u.UID,
	}); err != nil {
		glog.Errorf("Failed to seed permission document for %s: %v", u.UID, err)
	}

	if err := l.store.MergeSet(ctx, CountersDocPath, map[string]interface{}{
		"OnCreateCount": firestore.Increment(1),
		"totalUsers":    firestore.Increment(1),
		"modified":      l.now(),
	}); err != nil {
		glog.Errorf("Failed to update user counters for %s: %v", u.UID, err)
	}
}

// AccountDeleted removes the details mirror and adjusts the counters. The
// permission document is intentionally left in place: its own delete trigger
// path resets claims and revokes tokens, and the two trigger paths must each
// be independently consistent.
func (l *Lifecycle) AccountDeleted(ctx context.Context, u UserProfile) {
	if err := l.store.Delete(ctx, UserDetailsDocPath(u.UID)); err != nil {
		glog.Errorf("Failed to delete details document for %s: %v", u.UID, err)
	}

	if err := l.store.MergeSet(ctx, CountersDocPath, map[string]interface{}{
		"OnDeleteCount": firestore.Increment(-1),
		"totalUsers":    firestore.Increment(-1),
		"modified":      l.now(),
	}); err != nil {
		glog.Errorf("Failed to update user counters for %s: %v", u.UID, err)
	}
}

// BeforeCreate runs synchronously before account creation completes. It
// upserts the details mirror and may override profile display fields on the
// returned identity assertion.
func (l *Lifecycle) BeforeCreate(ctx context.Context, u UserProfile) (*ProfileOverride, error) {
	return l.blockingUpsert(ctx, u)
}

// BeforeSignIn runs synchronously before each sign-in completes.
func (l *Lifecycle) BeforeSignIn(ctx context.Context, u UserProfile) (*ProfileOverride, error) {
	return l.blockingUpsert(ctx, u)
}

func (l *Lifecycle) blockingUpsert(ctx context.Context, u UserProfile) (*ProfileOverride, error) {
	if err := l.store.MergeSet(ctx, UserDetailsDocPath(u.UID), l.detailsData(u)); err != nil {
		// The mirror is denormalized convenience state; never block the
		// auth flow on it.
		glog.Errorf("Failed to upsert details document for %s: %v", u.UID, err)
	}

	return &ProfileOverride{
		DisplayName:   u.DisplayName,
		PhotoURL:      u.PhotoURL,
		EmailVerified: u.EmailVerified,
		Disabled:      u.Disabled,
		CustomClaims:  u.CustomClaims,
	}, nil
}
