//go:build !windows

package harness

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// maxNoFile is the ceiling this harness will raise RLIMIT_NOFILE to, even
// if a child asks for more. Mirrors the distilled spec's Windows-side
// "clamped to 8192 with a warning" rule, scaled up for POSIX where high fd
// ceilings are routine for request servers and event buses.
const maxNoFile = 1 << 20

// applyPlatformTuning raises the open-file-descriptor limit when the child
// asked for one via opts["rlimit_nofile"], clamped to maxNoFile.
func applyPlatformTuning(opts map[string]any) {
	raw, ok := opts["rlimit_nofile"]
	if !ok {
		return
	}
	want, ok := toUint64(raw)
	if !ok || want == 0 {
		return
	}

	if want > maxNoFile {
		logrus.WithFields(logrus.Fields{"requested": want, "clamped_to": maxNoFile}).
			Warn("harness: rlimit_nofile request clamped")
		want = maxNoFile
	}

	limit := unix.Rlimit{Cur: want, Max: want}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		logrus.WithError(err).Warn("harness: failed to raise RLIMIT_NOFILE")
	}
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		return uint64(n), n > 0
	case int64:
		return uint64(n), n > 0
	case uint64:
		return n, n > 0
	case float64:
		return uint64(n), n > 0
	default:
		return 0, false
	}
}
