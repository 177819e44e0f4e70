package supervisor

import (
	"encoding/json"
	"os"
	"syscall"

	"github.com/kornnellio/gosv/internal/signalscope"
)

// envChildOpts carries a ChildSpec's Opts map across the re-exec boundary:
// cmd/gosv's child subcommand decodes it back out of the environment before
// resolving the entry and calling harness.Run.
const envChildOpts = "GOSV_CHILD_OPTS"

// encodeChildEnv serializes the pieces of spec the re-exec'd process needs
// that argv can't carry cleanly (an arbitrary opts map).
func encodeChildEnv(spec ChildSpec) []string {
	payload, err := json.Marshal(spec.Opts)
	if err != nil {
		return nil
	}
	return []string{envChildOpts + "=" + string(payload)}
}

// DecodeChildOpts is called from the re-exec'd child subcommand to recover
// the opts map encodeChildEnv packed into the environment.
func DecodeChildOpts() map[string]any {
	raw := os.Getenv(envChildOpts)
	if raw == "" {
		return map[string]any{}
	}
	var opts map[string]any
	if err := json.Unmarshal([]byte(raw), &opts); err != nil {
		return map[string]any{}
	}
	return opts
}

// withDefaultSignals brackets body with the scoped signal mask over
// SIGINT/SIGTERM: a fork/exec happening mid-window must not race this
// process's own termination handler install. Grounded in
// internal/signalscope, which renders the distilled spec's "save and
// restore signal disposition" operation in terms of os/signal's
// notify/reset primitives.
func withDefaultSignals(body func()) {
	ch := make(chan os.Signal, 2)
	subs := []signalscope.Subscription{
		{Signal: syscall.SIGINT, Chan: ch},
		{Signal: syscall.SIGTERM, Chan: ch},
	}
	signalscope.WithDefault(subs, body)
}
