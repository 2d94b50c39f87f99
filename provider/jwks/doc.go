// Package jwks validates session tokens issued by a hosted identity
// provider. Keys come from one or more JWK Set endpoints, optionally
// merged with locally configured keys, and are refreshed in the
// background.
//
// The returned claims are portal session claims, so a hosted subject is
// mapped to a principal id the same way a local one is.
package jwks
