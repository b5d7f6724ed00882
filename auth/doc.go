// Package auth is a token-backed authentication provider for the auth cache.
//
// A TokenProvider keeps the signed-in session in a kv.Storage (normally a
// kv/sealed store over the durable backend), validates its access token
// with auth/jwt and tells listeners about sign-in, refresh and sign-out.
// It implements authcache.Provider.
package auth
