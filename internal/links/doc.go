// Package links implements the persistent-link overlay
// 4.5: long-lived, human-friendly identifiers that map to sessions with
// tiered expiry policy, gated by wallet balance, surviving host restarts
// through an encrypted at-rest store and a background auto-regeneration
// loop.
package links
