// Package client provides access to the CashMate backend API.
//
// Two gateways share one JSON request path. Public calls the auth endpoints
// without credentials. Client calls the resource endpoints through a
// Transport that attaches the stored access token and recovers from an
// expired one.
//
// # Quick Start
//
// Wire the gateways to a credential keyring and a refresh coordinator:
//
//	import (
//	    "git.sr.ht/~jakintosh/cashmate/pkg/client"
//	    "git.sr.ht/~jakintosh/cashmate/pkg/credentials"
//	    "git.sr.ht/~jakintosh/cashmate/pkg/tokens"
//	)
//
//	keyring := credentials.NewKeyring(credentials.NewMemoryStore())
//	public := client.NewPublic("https://api.cashmate.example", nil)
//	coordinator := tokens.NewCoordinator(public, keyring)
//	api := client.New("https://api.cashmate.example", keyring, coordinator)
//
//	categories, err := api.ListCategories(ctx)
//
// # Token Recovery
//
// When the backend answers 401, the Transport asks the coordinator for a
// fresh token and re-sends the request once with the new bearer credential.
// The request body is replayed on the retry. Concurrent 401s share a single
// refresh exchange. A second 401 is returned to the caller as-is.
//
// # Error Handling
//
// Non-2xx answers are *StatusError values that match the package sentinels:
//
//	_, err := api.GetCategory(ctx, 7)
//	switch {
//	case errors.Is(err, client.ErrNotFound):
//	    // no such category
//	case errors.Is(err, client.ErrValidation):
//	    // 400, see StatusError.Fields
//	case errors.Is(err, tokens.ErrRefreshRejected):
//	    // 401 and the refresh token was refused; the session is over
//	case errors.Is(err, tokens.ErrNoRefreshToken):
//	    // 401 and there was nothing to refresh with
//	}
//
// Requests that never produced a response are *NetworkError values.
//
// # Testing
//
// Depend on the Authenticator and API interfaces rather than the concrete
// gateways. The cashmatetest package provides an in-process backend.
package client
