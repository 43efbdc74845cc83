package fnsvc

import (
	"context"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// ClaimsAdmin is the slice of the Firebase Auth admin API the reconciler
// uses. *auth.Client satisfies it.
type ClaimsAdmin interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, claims map[string]interface{}) error
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// Reconciler brings Auth custom claims into agreement with a user's
// permission document in response to write events on that document.
//
// Trigger delivery is at-least-once and not strictly ordered, so every branch
// must be safe to run twice: setting the same claims again is a no-op and
// revoking tokens again is harmless. Claim state converges to the latest
// document state regardless of processing order.
type Reconciler struct {
	auth  ClaimsAdmin
	store DocStore
	now   func() time.Time
}

func NewReconciler(claims ClaimsAdmin, store DocStore) *Reconciler {
	return &Reconciler{auth: claims, store: store, now: time.Now}
}

// HandleWrite processes one write event on private/auth/permissions/{uid}.
// The write type is derived from before/after presence: created (no before),
// updated (both), deleted (no after).
func (r *Reconciler) HandleWrite(ctx context.Context, uid string, before, after *PermissionsDoc) error {
	// Cheap fan-out signal for anything watching permission churn; stamped
	// before branching on the write type.
	err := r.store.MergeSet(ctx, AuthStatusDocPath, map[string]interface{}{
		"userPermissionsModified": r.now(),
	})
	if err != nil {
		return err
	}

	switch {
	case before == nil && after == nil:
		return nil
	case before != nil && after != nil:
		return r.updated(ctx, uid, before, after)
	case before == nil:
		return r.created(ctx, uid, after)
	default:
		return r.deleted(ctx, uid)
	}
}

func (r *Reconciler) created(ctx context.Context, uid string, after *PermissionsDoc) error {
	set := EffectivePermissions(after)

	if err := r.auth.SetCustomUserClaims(ctx, uid, set.Claims()); err != nil {
		// Best-effort: the document is committed either way, and a
		// redelivered event will retry.
		glog.Errorf("Failed to set custom claims for %s: %v", uid, err)
		return nil
	}

	user, err := r.auth.GetUser(ctx, uid)
	if err != nil {
		glog.Errorf("Failed to look up user %s for profile write-back: %v", uid, err)
	}

	writeBack := map[string]interface{}{
		"permissions": set,
		"createdAt":   r.now(),
		"uid":         uid,
	}
	if user != nil && user.UserInfo != nil {
		writeBack["displayName"] = user.DisplayName
		writeBack["email"] = user.Email
	}
	if err := r.store.MergeSet(ctx, PermissionsDocPath(uid), writeBack); err != nil {
		glog.Errorf("Failed to write back profile fields for %s: %v", uid, err)
	}

	glog.Infof("Permissions created: %s is now authorized with %v", uid, set)
	return nil
}

func (r *Reconciler) updated(ctx context.Context, uid string, before, after *PermissionsDoc) error {
	set := EffectivePermissions(after)
	if !hasChangedPermissions(before, set) {
		return nil
	}

	// New claims only land on the client at the next token refresh, so the
	// refresh tokens are revoked alongside to force re-authentication.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.auth.SetCustomUserClaims(gctx, uid, set.Claims()); err != nil {
			glog.Errorf("Failed to set custom claims for %s: %v", uid, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.auth.RevokeRefreshTokens(gctx, uid); err != nil {
			glog.Errorf("Failed to revoke refresh tokens for %s: %v", uid, err)
		}
		return nil
	})
	return g.Wait()
}

func (r *Reconciler) deleted(ctx context.Context, uid string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := r.auth.RevokeRefreshTokens(gctx, uid); err != nil {
			glog.Errorf("Failed to revoke refresh tokens for %s: %v", uid, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.auth.SetCustomUserClaims(gctx, uid, AllFalse().Claims()); err != nil {
			glog.Errorf("Failed to reset custom claims for %s: %v", uid, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	glog.Infof("Permissions deleted: %s is no longer authorized", uid)
	return nil
}
