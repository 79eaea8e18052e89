package controllers

import (
	"fmt"
	"net/http"

	"hoyn/internal/providers"
)

// actingUser returns the caller id. A bearer token, when present, must agree with
// the id claimed in the request; without one the claimed id is trusted as is.
func actingUser(r *http.Request, identity providers.IdentityProviderInterface, claimed string) (string, error) {
	uid, ok, err := identity.Authenticate(r)
	if err != nil {
		return "", err
	}
	if !ok {
		return claimed, nil
	}
	if claimed == "" {
		return uid, nil
	}
	if claimed != uid {
		return "", fmt.Errorf("%w: token subject does not match %q", providers.ErrUnauthenticated, claimed)
	}
	return uid, nil
}
