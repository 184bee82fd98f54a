// Package tokens decodes CashMate access tokens and coordinates their
// refresh.
//
// The package has two parts:
//
//   - Decode: turns an access token into an Identity (subject, username,
//     email, role, issued-at, expiry) without verifying the signature
//   - Coordinator: the single-flight refresh protocol shared by every
//     authenticated request
//
// # Decoding
//
//	identity, err := tokens.Decode(accessToken)
//	if errors.Is(err, tokens.ErrMalformedToken) {
//	    // treat as no token at all
//	}
//	fmt.Println(identity.Username, identity.Role)
//
// # Refreshing
//
// A Coordinator is built from a Refresher (the backend's /auth/refresh
// endpoint) and a Vault (the credential store):
//
//	coordinator := tokens.NewCoordinator(
//	    public,  // *client.Public implements Refresher
//	    keyring, // *credentials.Keyring implements Vault
//	    tokens.WithExpiredHook(func(err error) {
//	        // credentials are already cleared; send the user to login
//	    }),
//	)
//
//	token, err := coordinator.AcquireToken(ctx)
//
// When many requests see a 401 at once, the first one to call AcquireToken
// performs the exchange and the rest queue behind it. The queue is settled
// first-in first-out with the same token or the same error, and the
// coordinator is idle again before AcquireToken returns to the caller that
// ran the exchange.
//
// # Error Handling
//
//	token, err := coordinator.AcquireToken(ctx)
//	switch {
//	case errors.Is(err, tokens.ErrNoRefreshToken):
//	    // nothing to refresh with; credentials were cleared
//	case errors.Is(err, tokens.ErrRefreshRejected):
//	    // backend refused the refresh token; credentials were cleared
//	case errors.Is(err, tokens.ErrSessionReplaced):
//	    // a logout happened while the refresh was in flight
//	}
//
// Both ErrNoRefreshToken and ErrRefreshRejected end the session: the stored
// credentials are removed and the expired hook runs. A refresh that started
// before a new login never overwrites or clears that login's tokens.
package tokens
