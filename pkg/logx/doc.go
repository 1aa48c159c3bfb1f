// Package logx wraps zerolog behind a small structured-logging facade.
//
// The zero-value Logger is a safe no-op, so components can embed one without
// nil checks. A Service-backed Logger stays live across config reloads:
// Apply() swaps sinks and level without invalidating handed-out loggers.
package logx
