package supervisor

import "sync"

// registry maps a stable child entry name to the Go function that
// implements it. A generic child is started by re-exec'ing the current
// binary with the entry name; since the re-exec'd process is the same
// binary, whatever package-level init() calls registered these names run
// again in the child, so the lookup succeeds there too. This is the same
// self-reexec-plus-name-lookup idiom used throughout the container-runtime
// corpus (runc/containerd-style re-exec) for getting a typed Go function
// to run in a freshly spawned OS process without a real fork().
var (
	registryMu sync.RWMutex
	registry   = map[string]EntryFunc{}
)

// Register associates name with fn so a later AddProcessFunc(name, ...)
// can re-exec into it. Intended to be called from package-level init()
// functions, mirroring flag.Var-style self-registration.
func Register(name string, fn EntryFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Lookup returns the entry registered under name, if any. Exported so
// cmd/gosv's re-exec'd child subcommand can resolve it without reaching
// into package internals.
func Lookup(name string) (EntryFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}
