package multipay

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Permission is a set of access-control flags.
type Permission uint8

const (
	// PermissionAdmin gates configuration changes and role management.
	PermissionAdmin Permission = 1 << iota
	// PermissionPayer gates payment and swap execution.
	PermissionPayer
)

// Authorizer is the pluggable authorization strategy consulted at the top of
// every mutating entry point. An error means the caller lacks the permission
// and the call must abort with no state change.
type Authorizer interface {
	Authorize(caller common.Address, perm Permission) error
}

func errUnauthorized(caller common.Address) error {
	return NewSettlementError(ErrCodeUnauthorized, "caller is not authorized", map[string]interface{}{
		"caller": caller.Hex(),
	})
}

// OwnerAuthorizer grants every permission to a single owner address.
type OwnerAuthorizer struct {
	owner common.Address
}

// NewOwnerAuthorizer creates a single-owner authorization gate.
func NewOwnerAuthorizer(owner common.Address) *OwnerAuthorizer {
	return &OwnerAuthorizer{owner: owner}
}

// Owner returns the owning address.
func (a *OwnerAuthorizer) Owner() common.Address {
	return a.owner
}

// Authorize implements Authorizer.
func (a *OwnerAuthorizer) Authorize(caller common.Address, _ Permission) error {
	if caller != a.owner {
		return errUnauthorized(caller)
	}
	return nil
}

// RoleAuthorizer maps addresses to permission sets. The deployer starts with
// both roles; holders of PermissionAdmin may grant and revoke.
type RoleAuthorizer struct {
	mu    sync.RWMutex
	roles map[common.Address]Permission
}

// NewRoleAuthorizer creates a role-based gate with the deployer holding the
// admin and payer roles.
func NewRoleAuthorizer(deployer common.Address) *RoleAuthorizer {
	return &RoleAuthorizer{
		roles: map[common.Address]Permission{
			deployer: PermissionAdmin | PermissionPayer,
		},
	}
}

// Authorize implements Authorizer.
func (a *RoleAuthorizer) Authorize(caller common.Address, perm Permission) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.roles[caller]&perm != perm {
		return errUnauthorized(caller)
	}
	return nil
}

// Has reports whether account holds every flag in perm.
func (a *RoleAuthorizer) Has(account common.Address, perm Permission) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.roles[account]&perm == perm
}

// Grant adds perm to account's permission set. The caller must hold
// PermissionAdmin.
func (a *RoleAuthorizer) Grant(caller, account common.Address, perm Permission) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.roles[caller]&PermissionAdmin == 0 {
		return errUnauthorized(caller)
	}
	a.roles[account] |= perm
	return nil
}

// Revoke removes perm from account's permission set. The caller must hold
// PermissionAdmin.
func (a *RoleAuthorizer) Revoke(caller, account common.Address, perm Permission) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.roles[caller]&PermissionAdmin == 0 {
		return errUnauthorized(caller)
	}
	a.roles[account] &^= perm
	if a.roles[account] == 0 {
		delete(a.roles, account)
	}
	return nil
}
