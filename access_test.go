package multipay

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	deployerAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	outsiderAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")
	payerAddr    = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func TestOwnerAuthorizer(t *testing.T) {
	auth := NewOwnerAuthorizer(deployerAddr)

	if err := auth.Authorize(deployerAddr, PermissionAdmin); err != nil {
		t.Fatalf("owner should be authorized: %v", err)
	}
	if err := auth.Authorize(deployerAddr, PermissionPayer); err != nil {
		t.Fatalf("owner should hold every permission: %v", err)
	}
	if err := auth.Authorize(outsiderAddr, PermissionPayer); ErrorCode(err) != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRoleAuthorizerDeployerRoles(t *testing.T) {
	auth := NewRoleAuthorizer(deployerAddr)

	if !auth.Has(deployerAddr, PermissionAdmin|PermissionPayer) {
		t.Fatal("deployer should hold admin and payer")
	}
	if err := auth.Authorize(outsiderAddr, PermissionPayer); ErrorCode(err) != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRoleAuthorizerGrantRevoke(t *testing.T) {
	auth := NewRoleAuthorizer(deployerAddr)

	if err := auth.Grant(deployerAddr, payerAddr, PermissionPayer); err != nil {
		t.Fatalf("admin grant failed: %v", err)
	}
	if err := auth.Authorize(payerAddr, PermissionPayer); err != nil {
		t.Fatalf("granted payer should be authorized: %v", err)
	}
	if auth.Has(payerAddr, PermissionAdmin) {
		t.Fatal("payer must not hold admin")
	}

	if err := auth.Revoke(deployerAddr, payerAddr, PermissionPayer); err != nil {
		t.Fatalf("admin revoke failed: %v", err)
	}
	if err := auth.Authorize(payerAddr, PermissionPayer); ErrorCode(err) != ErrCodeUnauthorized {
		t.Fatalf("revoked payer should be unauthorized, got %v", err)
	}
}

func TestRoleAuthorizerNonAdminCannotGrant(t *testing.T) {
	auth := NewRoleAuthorizer(deployerAddr)

	if err := auth.Grant(outsiderAddr, outsiderAddr, PermissionAdmin); ErrorCode(err) != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := auth.Revoke(outsiderAddr, deployerAddr, PermissionAdmin); ErrorCode(err) != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if !auth.Has(deployerAddr, PermissionAdmin) {
		t.Fatal("failed revoke must not change roles")
	}
}

func TestReentrancyGuard(t *testing.T) {
	var g reentrancyGuard

	if err := g.enter(); err != nil {
		t.Fatalf("first enter failed: %v", err)
	}
	if err := g.enter(); ErrorCode(err) != ErrCodeReentrantCall {
		t.Fatalf("expected reentrant_call, got %v", err)
	}
	g.leave()
	if err := g.enter(); err != nil {
		t.Fatalf("enter after leave failed: %v", err)
	}
}
