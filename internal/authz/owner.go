// Package authz decides whether an authenticated principal may access a
// student record. The only policy is owner-or-admin: administrators may
// access any record, everyone else only the record whose id matches their
// token subject.
package authz

import "strconv"

// RoleAdmin is the role claim value that overrides ownership.
const RoleAdmin = "Admin"

type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

type Reason int

const (
	ReasonNotOwner Reason = iota
	ReasonBadSubject
	ReasonAdmin
	ReasonOwner
)

func (r Reason) String() string {
	switch r {
	case ReasonNotOwner:
		return "subject does not own resource"
	case ReasonBadSubject:
		return "subject is not a numeric id"
	case ReasonAdmin:
		return "admin override"
	case ReasonOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Claims are the parts of a verified access token the policy looks at.
type Claims struct {
	Subject string
	Role    string
}

type Result struct {
	Decision Decision
	Reason   Reason
}

func (r Result) Allowed() bool { return r.Decision == Allow }

// OwnerOrAdmin evaluates the policy for a resource owned by ownerID.
func OwnerOrAdmin(claims Claims, ownerID int) Result {
	if claims.Role == RoleAdmin {
		return Result{Decision: Allow, Reason: ReasonAdmin}
	}

	subjectID, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return Result{Decision: Deny, Reason: ReasonBadSubject}
	}
	if subjectID != ownerID {
		return Result{Decision: Deny, Reason: ReasonNotOwner}
	}
	return Result{Decision: Allow, Reason: ReasonOwner}
}
