package socket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"noteszone/pkg/apperr"
	"noteszone/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVerifier map[string]token.Identity

func (v staticVerifier) Verify(credential string) (token.Identity, error) {
	if id, ok := v[credential]; ok {
		return id, nil
	}
	return token.Identity{}, errors.New("invalid token")
}

func TestGatewayAuthenticate(t *testing.T) {
	alice := token.Identity{ID: "alice", Email: "alice@example.com", Name: "Alice"}
	gw := NewGateway(staticVerifier{"good": alice})

	identity, err := gw.Authenticate(httptest.NewRequest(http.MethodGet, "/ws?token=good", nil))
	require.NoError(t, err)
	assert.Equal(t, alice, identity)

	for _, target := range []string{"/ws", "/ws?token=bad"} {
		_, err := gw.Authenticate(httptest.NewRequest(http.MethodGet, target, nil))
		require.Error(t, err)
		assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err), target)
		assert.Equal(t, http.StatusUnauthorized, apperr.StatusOf(err))
	}
}
