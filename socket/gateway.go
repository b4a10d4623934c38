package socket

import (
	"net/http"

	"noteszone/pkg/apperr"
	"noteszone/pkg/token"
)

// Gateway authenticates a connection attempt before it is upgraded.
type Gateway struct {
	verifier token.Verifier
}

func NewGateway(verifier token.Verifier) *Gateway {
	return &Gateway{verifier: verifier}
}

func (g *Gateway) Authenticate(r *http.Request) (token.Identity, error) {
	credential := token.FromRequest(r)
	if credential == "" {
		return token.Identity{}, apperr.Unauthorized("Unauthorized")
	}
	identity, err := g.verifier.Verify(credential)
	if err != nil {
		return token.Identity{}, apperr.Unauthorized("Unauthorized")
	}
	return identity, nil
}
