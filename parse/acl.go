package parse

import (
	"golang.org/x/exp/maps"

	"github.com/golang/glog"
)

// PublicAclKey is the wildcard principal granting access to everyone.
const PublicAclKey = "*"

// Acl is a sparse permission map over principal ids. A permission is
// represented only by key presence. The backend rejects explicit false
// literals in ACL payloads, so setting a permission to false removes the
// inner key, and removing the last inner key removes the outer entry.
type Acl struct {
	permissions map[string]map[string]bool
}

func NewAcl() *Acl {
	return &Acl{
		permissions: map[string]map[string]bool{},
	}
}

// NewAclForUser creates an ACL granting read and write to one user.
// Returns nil for a user that was never persisted.
func NewAclForUser(user *User) *Acl {
	if user == nil || user.Id() == "" {
		glog.Warningf("[acl]cannot build an acl for a user with no id\n")
		return nil
	}
	acl := NewAcl()
	acl.SetReadAccess(true, user.Id())
	acl.SetWriteAccess(true, user.Id())
	return acl
}

func (self *Acl) set(allowed bool, principal string, permission string) {
	if allowed {
		inner, ok := self.permissions[principal]
		if !ok {
			inner = map[string]bool{}
			self.permissions[principal] = inner
		}
		inner[permission] = true
	} else {
		inner, ok := self.permissions[principal]
		if !ok {
			return
		}
		delete(inner, permission)
		if len(inner) == 0 {
			delete(self.permissions, principal)
		}
	}
}

func (self *Acl) allowed(principal string, permission string) bool {
	if inner, ok := self.permissions[principal]; ok && inner[permission] {
		return true
	}
	return false
}

func (self *Acl) SetPublicReadAccess(allowed bool) {
	self.set(allowed, PublicAclKey, "read")
}

func (self *Acl) SetPublicWriteAccess(allowed bool) {
	self.set(allowed, PublicAclKey, "write")
}

func (self *Acl) PublicReadAccess() bool {
	return self.allowed(PublicAclKey, "read")
}

func (self *Acl) PublicWriteAccess() bool {
	return self.allowed(PublicAclKey, "write")
}

func (self *Acl) SetReadAccess(allowed bool, userId string) bool {
	if userId == "" {
		return false
	}
	self.set(allowed, userId, "read")
	return true
}

func (self *Acl) SetWriteAccess(allowed bool, userId string) bool {
	if userId == "" {
		return false
	}
	self.set(allowed, userId, "write")
	return true
}

// ReadAccess reports whether the user or the public entry grants read.
// Permissions are additive, never intersective.
func (self *Acl) ReadAccess(userId string) bool {
	return self.allowed(userId, "read") || self.PublicReadAccess()
}

func (self *Acl) WriteAccess(userId string) bool {
	return self.allowed(userId, "write") || self.PublicWriteAccess()
}

func (self *Acl) SetReadAccessForUser(allowed bool, user *User) bool {
	if user == nil || user.Id() == "" {
		glog.Warningf("[acl]cannot set acl read access for a user with no id\n")
		return false
	}
	return self.SetReadAccess(allowed, user.Id())
}

func (self *Acl) SetWriteAccessForUser(allowed bool, user *User) bool {
	if user == nil || user.Id() == "" {
		glog.Warningf("[acl]cannot set acl write access for a user with no id\n")
		return false
	}
	return self.SetWriteAccess(allowed, user.Id())
}

func (self *Acl) ReadAccessForUser(user *User) bool {
	if user == nil {
		return self.PublicReadAccess()
	}
	return self.ReadAccess(user.Id())
}

func (self *Acl) WriteAccessForUser(user *User) bool {
	if user == nil {
		return self.PublicWriteAccess()
	}
	return self.WriteAccess(user.Id())
}

func (self *Acl) IsEmpty() bool {
	return len(self.permissions) == 0
}

func (self *Acl) Principals() []string {
	principals := maps.Keys(self.permissions)
	return principals
}

func (self *Acl) Clone() *Acl {
	out := NewAcl()
	for principal, inner := range self.permissions {
		out.permissions[principal] = maps.Clone(inner)
	}
	return out
}

func (self *Acl) toWire() map[string]any {
	wire := map[string]any{}
	for principal, inner := range self.permissions {
		innerWire := map[string]any{}
		for permission, allowed := range inner {
			if allowed {
				innerWire[permission] = true
			}
		}
		wire[principal] = innerWire
	}
	return wire
}

// aclFromWire loads the map verbatim. Malformed entries are dropped rather
// than validated; they would never match a lookup anyway.
func aclFromWire(wire map[string]any) *Acl {
	acl := NewAcl()
	for principal, innerAny := range wire {
		inner, ok := innerAny.(map[string]any)
		if !ok {
			continue
		}
		for permission, allowedAny := range inner {
			if allowed, ok := allowedAny.(bool); ok && allowed {
				acl.set(true, principal, permission)
			}
		}
	}
	return acl
}
