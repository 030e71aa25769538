// ABOUTME: Execution-context detection for notedock storage dispatch
// ABOUTME: Classifies a process as privileged (direct store access) or delegated

package origin

import (
	"net/url"
	"os"
)

// Scheme is the origin scheme of the privileged daemon. Only code running
// under this origin may touch the durable store directly; everything else
// delegates through the broker.
const Scheme = "notedock"

// EnvOrigin names the environment variable carrying the process origin.
// The daemon sets it for itself; embedded clients inherit whatever their
// host set, typically nothing.
const EnvOrigin = "NOTEDOCK_ORIGIN"

// Context describes where the calling code is executing. It is built once
// at startup and treated as immutable.
type Context struct {
	// Origin is the addressable origin of this process, e.g.
	// "notedock://daemon" for the daemon itself or an embedder-defined
	// value for injected contexts.
	Origin string

	// SocketPath is where the broker channel lives. Used by Valid to
	// decide whether the runtime is currently connectable.
	SocketPath string
}

// Detect builds a Context from the process environment.
func Detect(socketPath string) Context {
	return Context{
		Origin:     os.Getenv(EnvOrigin),
		SocketPath: socketPath,
	}
}

// Privileged reports whether this context may access the durable store
// directly. Pure and side-effect-free: true only when the origin parses and
// its scheme is the daemon's own. Any other embedding is delegated.
func (c Context) Privileged() bool {
	u, err := url.Parse(c.Origin)
	if err != nil {
		return false
	}
	return u.Scheme == Scheme
}

// Valid reports whether the surrounding runtime is currently connectable at
// all, as opposed to having been torn down (daemon stopped, socket removed).
// This governs the deepest fallback, not the privileged/delegated split.
// A privileged context is always valid with respect to itself.
func (c Context) Valid() bool {
	if c.Privileged() {
		return true
	}
	if c.SocketPath == "" {
		return false
	}
	_, err := os.Stat(c.SocketPath)
	return err == nil
}
