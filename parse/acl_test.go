package parse

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestAclSparseEncoding(t *testing.T) {
	acl := NewAcl()
	acl.SetPublicReadAccess(true)
	acl.SetPublicWriteAccess(false)
	acl.SetReadAccess(true, "U1")
	acl.SetWriteAccess(true, "U1")

	assert.Equal(t, acl.toWire(), map[string]any{
		"*": map[string]any{
			"read": true,
		},
		"U1": map[string]any{
			"read":  true,
			"write": true,
		},
	})
}

func TestAclToggleRoundTrip(t *testing.T) {
	// toggling any single permission true then false returns the acl to
	// an empty serialized form
	toggles := []func(acl *Acl, allowed bool){
		func(acl *Acl, allowed bool) { acl.SetPublicReadAccess(allowed) },
		func(acl *Acl, allowed bool) { acl.SetPublicWriteAccess(allowed) },
		func(acl *Acl, allowed bool) { acl.SetReadAccess(allowed, "U1") },
		func(acl *Acl, allowed bool) { acl.SetWriteAccess(allowed, "U1") },
	}
	for _, toggle := range toggles {
		acl := NewAcl()
		toggle(acl, true)
		assert.Equal(t, acl.IsEmpty(), false)
		toggle(acl, false)
		assert.Equal(t, acl.IsEmpty(), true)
		assert.Equal(t, acl.toWire(), map[string]any{})
	}
}

func TestAclUnionLookup(t *testing.T) {
	acl := NewAcl()
	acl.SetPublicReadAccess(true)

	// the public entry grants read to any user
	assert.Equal(t, acl.ReadAccess("U1"), true)
	assert.Equal(t, acl.WriteAccess("U1"), false)

	acl.SetWriteAccess(true, "U1")
	assert.Equal(t, acl.WriteAccess("U1"), true)
	assert.Equal(t, acl.WriteAccess("U2"), false)
}

func TestAclUserVariants(t *testing.T) {
	acl := NewAcl()

	// a user with no id cannot be granted anything
	unsaved := &User{}
	assert.Equal(t, acl.SetReadAccessForUser(true, unsaved), false)
	assert.Equal(t, acl.SetWriteAccessForUser(true, unsaved), false)
	assert.Equal(t, acl.IsEmpty(), true)

	saved := &User{}
	saved.objectId = "U1"
	assert.Equal(t, acl.SetReadAccessForUser(true, saved), true)
	assert.Equal(t, acl.ReadAccessForUser(saved), true)
	assert.Equal(t, acl.WriteAccessForUser(saved), false)

	assert.Equal(t, NewAclForUser(unsaved), nil)
	forUser := NewAclForUser(saved)
	assert.Equal(t, forUser.ReadAccess("U1"), true)
	assert.Equal(t, forUser.WriteAccess("U1"), true)
}

func TestAclFromWire(t *testing.T) {
	acl := aclFromWire(map[string]any{
		"*": map[string]any{
			"read": true,
		},
		"U1": map[string]any{
			"write": true,
		},
		// malformed entries are dropped
		"U2": "nonsense",
	})
	assert.Equal(t, acl.PublicReadAccess(), true)
	assert.Equal(t, acl.WriteAccess("U1"), true)
	assert.Equal(t, acl.ReadAccess("U2"), true) // via public
	assert.Equal(t, acl.WriteAccess("U2"), false)
}

func TestAclClone(t *testing.T) {
	acl := NewAcl()
	acl.SetReadAccess(true, "U1")

	clone := acl.Clone()
	clone.SetReadAccess(false, "U1")
	clone.SetWriteAccess(true, "U2")

	assert.Equal(t, acl.ReadAccess("U1"), true)
	assert.Equal(t, acl.WriteAccess("U2"), false)
}
