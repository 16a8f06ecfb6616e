// Package guard gates server-rendered pages on the authentication state of
// the requesting session.
//
// Auth state:
//   - State is a snapshot with a Status (loading, authenticated,
//     unauthenticated) and the signed in User. A Store owns one session's
//     state; the auth provider is its only writer and guards only read it
//     through the Source interface.
//   - A check opened with Store.Begin moves the state back to loading. Only
//     the newest check may settle it, older results are dropped.
//
// Decisions:
//   - Protected and Public are pure functions from State to Decision. They
//     are the whole policy; RouteGuard only turns a Decision into a render,
//     a loading view or a redirect.
//
// Routing:
//   - RouteTable maps paths to pages and their guards. DefaultRoutes holds
//     the application table and RouteGuard.Mount registers it on a fiber
//     router together with the unmatched path fallback.
package guard
