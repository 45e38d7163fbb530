package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
)

func TestFormatTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{48 * time.Hour, "48h"},
		{7 * 24 * time.Hour, "168h"},
		{15 * time.Minute, "15m"},
		{90 * time.Minute, "1h30m"},
		{90 * time.Second, "1m30s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTTL(tt.in), tt.in.String())
	}
}

func TestUpdateUserRequest_Update(t *testing.T) {
	t.Parallel()

	role := "hr"
	active := false
	upd := UpdateUserRequest{Role: &role, IsActive: &active}.Update()

	if assert.NotNil(t, upd.Role) {
		assert.Equal(t, models.RoleHR, *upd.Role)
	}
	assert.Nil(t, upd.Name)
	assert.False(t, upd.Empty())
	assert.True(t, UpdateUserRequest{}.Update().Empty())
}
