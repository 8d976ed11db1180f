package shared

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityTable(t *testing.T) {
	cases := []struct {
		role Role
		perm string
		want bool
	}{
		{RoleSalesman, PermOrderPlace, true},
		{RoleSalesman, PermOrderForward, false},
		{RoleSalesManager, PermOrderForward, true},
		{RoleSalesAuthorizer, PermOrderAssignWarehouse, true},
		{RoleSalesAuthorizer, PermOrderApprove, true},
		{RoleSalesAuthorizer, PermOrderApproveWarehouse, false},
		{RoleAdmin, PermOrderApproveWarehouse, true},
		{RoleAdmin, PermOrderCancel, false},
		{RolePlantHead, PermOrderDispatch, true},
		{RolePlantHead, PermOrderCancel, true},
		{RoleAccountant, PermPaymentConfirmAdvance, true},
		{RoleAccountant, PermOrderCancel, false},
		{Role("Ghost"), PermOrderView, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Can(tc.role, tc.perm), "%s %s", tc.role, tc.perm)
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" salesauthorizer ")
	require.True(t, ok)
	require.Equal(t, RoleSalesAuthorizer, role)

	_, ok = ParseRole("driver")
	require.False(t, ok)
}

func TestActorRequire(t *testing.T) {
	require.NoError(t, Actor{ID: 1, Role: RoleAdmin}.Require(PermStockReceive))
	require.ErrorIs(t, Actor{ID: 1, Role: RoleSalesman}.Require(PermStockReceive), ErrForbidden)
	require.ErrorIs(t, Actor{Role: RoleAdmin}.Require(PermStockReceive), ErrForbidden)
}

func TestTypedErrorsUnwrap(t *testing.T) {
	var err error = &ConflictError{Subject: "order 00001", Action: "cancel", Current: "Cancelled"}
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, "order 00001: cannot cancel (current: Cancelled)", err.Error())

	err = &StockShortfallError{WarehouseID: 3, Items: []Shortfall{{ProductID: 1, Requested: 3, Available: 0}, {ProductID: 2, Requested: 5, Available: 4}}}
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "product 1 requested 3 available 0")
	require.Contains(t, err.Error(), "product 2 requested 5 available 4")

	var conflict *ConflictError
	require.False(t, errors.As(err, &conflict))
}
