package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		caller  principal
		ownerID int
		wantErr error
	}{
		{
			name:    "administrator may touch anything",
			caller:  principal{UserID: 1, Role: roleAdministrator},
			ownerID: 42,
			wantErr: nil,
		},
		{
			name:    "administrator may touch own resources",
			caller:  principal{UserID: 1, Role: roleAdministrator},
			ownerID: 1,
			wantErr: nil,
		},
		{
			name:    "regular owner is allowed",
			caller:  principal{UserID: 7, Role: roleRegular},
			ownerID: 7,
			wantErr: nil,
		},
		{
			name:    "regular non-owner is forbidden",
			caller:  principal{UserID: 7, Role: roleRegular},
			ownerID: 8,
			wantErr: errForbidden,
		},
		{
			name:    "unknown role falls through to forbidden",
			caller:  principal{UserID: 7, Role: role("Superuser")},
			ownerID: 8,
			wantErr: errForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, authorize(tt.caller, tt.ownerID), tt.wantErr)
		})
	}
}

func TestAuthorizeIsIdempotent(t *testing.T) {
	p := principal{UserID: 3, Role: roleRegular}
	first := authorize(p, 9)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, authorize(p, 9))
	}
}
