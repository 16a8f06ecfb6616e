// Package session is the auth provider behind the guards. It keeps one
// guard.Store per browser session, resolves the initial check from the
// token cookie, and runs login and logout as checks that pass through the
// loading state. Settled states are saved to a Backend so a session
// survives a restart when the redis backend is used.
package session
