package signalscope

import (
	"os"
	"os/signal"
	"testing"
)

// signalNotifyForTest subscribes ch to sig and ensures the subscription is
// torn down when the test finishes, regardless of what WithDefault did to it
// in between.
func signalNotifyForTest(t *testing.T, ch chan os.Signal, sig os.Signal) {
	t.Helper()
	signal.Notify(ch, sig)
	t.Cleanup(func() {
		signal.Stop(ch)
	})
}
