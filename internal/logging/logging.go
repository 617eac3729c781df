// Package logging provides the small injectable logging seam used by
// the revocation stores (the chain store and trust engine do not log).
// It wraps the standard log package behind an interface
// so callers embedding the core in a server can substitute structured
// logging without the core importing a specific framework.
package logging

import (
	"log"
	"os"
)

// Logger is the minimal surface the core needs. *log.Logger satisfies
// it already; it is also trivially satisfiable by zap's SugaredLogger,
// zerolog, etc.
type Logger interface {
	Printf(format string, args ...any)
}

// Default returns a *log.Logger writing to stderr, prefixed for the
// delegation core. Components given a nil Logger use Nop, not Default.
func Default() Logger {
	return log.New(os.Stderr, "delegation-core: ", log.LstdFlags)
}

// Nop discards everything. Useful in tests that don't want log noise.
type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Nop returns a Logger that discards all messages.
func Nop() Logger { return nopLogger{} }
