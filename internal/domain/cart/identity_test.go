package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGuestToken(t *testing.T) {
	a := NewGuestToken()
	b := NewGuestToken()

	assert.True(t, ValidGuestToken(a))
	assert.True(t, ValidGuestToken(b))
	assert.NotEqual(t, a, b)
}

func TestValidGuestToken_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no prefix", "deadbeef"},
		{"too short", "guest_abcdef"},
		{"not hex", "guest_" + string(make([]byte, 64))},
		{"prefix only", "guest_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, ValidGuestToken(tt.token))
		})
	}
}

func TestAuth_Authenticated(t *testing.T) {
	assert.False(t, Auth{}.Authenticated())
	assert.False(t, Auth{GuestToken: NewGuestToken()}.Authenticated())
	assert.True(t, Auth{UserID: 1}.Authenticated())
}
