// Package groupstate owns the per-group posting state: which accounts may
// post into a group, when the group last accepted a post, its onboarding
// ramp-up window, and its recently used content combinations.
//
// The Coordinator is the only writer. All writes go through the Store's
// conditional-update primitive so that two actors contending for the same
// group cannot produce a torn or lost update.
package groupstate
