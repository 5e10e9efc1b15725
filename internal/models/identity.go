package models

import "fmt"

// IdentityKind tags who is acting
type IdentityKind string

const (
	IdentityAnonymous IdentityKind = ""
	IdentityAdmin     IdentityKind = "admin"
	IdentityStudent   IdentityKind = "student"
)

// Identity is the resolved actor of a request. The zero value is anonymous.
type Identity struct {
	Kind IdentityKind `json:"kind"`
	ID   int64        `json:"id"`
}

// Anonymous is the identity of an unauthenticated caller
var Anonymous = Identity{}

func AdminIdentity(id int64) Identity {
	return Identity{Kind: IdentityAdmin, ID: id}
}

func StudentIdentity(id int64) Identity {
	return Identity{Kind: IdentityStudent, ID: id}
}

func (i Identity) IsAdmin() bool     { return i.Kind == IdentityAdmin && i.ID > 0 }
func (i Identity) IsStudent() bool   { return i.Kind == IdentityStudent && i.ID > 0 }
func (i Identity) IsAnonymous() bool { return !i.IsAdmin() && !i.IsStudent() }

func (i Identity) String() string {
	if i.IsAnonymous() {
		return "anonymous"
	}
	return fmt.Sprintf("%s:%d", i.Kind, i.ID)
}
