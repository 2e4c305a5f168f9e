// Package api implements the HTTP surface: a health
// probe, a session existence/summary endpoint, and the persistent-link
// management routes the expanded specification adds around the overlay
// of internal/links.
package api
