package fnsvc

import "time"

// Permission names a single key in a user's permission set. Permission keys
// double as custom-claim keys on the user's auth token.
type Permission string

// PermissionIsAdmin grants access to the admin console and its callable RPCs.
const PermissionIsAdmin Permission = "isAdmin"

// AllPermissions is the fixed permission key set. Reconciliation is tested
// key-by-key over this set, never over arbitrary document diffs.
var AllPermissions = []Permission{PermissionIsAdmin}

// PermissionSet is an effective permission assignment: every key in
// AllPermissions is present, with unknown or null document values coalesced
// to false.
type PermissionSet map[Permission]bool

// Claims renders the set as auth custom claims.
func (s PermissionSet) Claims() map[string]interface{} {
	claims := make(map[string]interface{}, len(s))
	for p, v := range s {
		claims[string(p)] = v
	}
	return claims
}

// AllFalse is the permission set applied when a permission document is
// deleted.
func AllFalse() PermissionSet {
	s := PermissionSet{}
	for _, p := range AllPermissions {
		s[p] = false
	}
	return s
}

// PermissionsDoc mirrors the document at private/auth/permissions/{uid}.
// Permission values are tri-state in the document (true/false/null); nil
// means null or absent.
type PermissionsDoc struct {
	Permissions map[Permission]*bool `firestore:"permissions" json:"permissions"`

	// Denormalized profile fields written back after creation.
	UID         string    `firestore:"uid,omitempty" json:"uid,omitempty"`
	Email       string    `firestore:"email,omitempty" json:"email,omitempty"`
	DisplayName string    `firestore:"displayName,omitempty" json:"displayName,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt,omitempty" json:"createdAt,omitempty"`
}

// EffectivePermissions computes the permission set a document grants,
// defaulting every unknown or null key to false. A nil doc (deleted document)
// grants nothing.
func EffectivePermissions(doc *PermissionsDoc) PermissionSet {
	s := AllFalse()
	if doc == nil {
		return s
	}
	for _, p := range AllPermissions {
		if v, ok := doc.Permissions[p]; ok && v != nil {
			s[p] = *v
		}
	}
	return s
}

// hasChangedPermissions reports whether any key of the fixed permission set
// differs between the effective after-set and the raw before-document. A key
// that was absent or null before counts as changed even when the effective
// after-value is false, matching strict per-key inequality.
func hasChangedPermissions(before *PermissionsDoc, after PermissionSet) bool {
	for _, p := range AllPermissions {
		var beforeVal *bool
		if before != nil {
			beforeVal = before.Permissions[p]
		}
		if beforeVal == nil || *beforeVal != after[p] {
			return true
		}
	}
	return false
}
