package signalscope

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithDefaultRestoresSubscription(t *testing.T) {
	ch := make(chan os.Signal, 1)
	signalNotifyForTest(t, ch, syscall.SIGUSR1)

	ran := false
	WithDefault([]Subscription{{Signal: syscall.SIGUSR1, Chan: ch}}, func() {
		ran = true
	})

	require.True(t, ran)

	// Restoration re-subscribed the channel; sending ourselves SIGUSR1
	// should land on ch again. Delivery runs through the runtime's signal
	// dispatch goroutine, so poll instead of a single non-blocking check.
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	require.Eventually(t, func() bool {
		select {
		case sig := <-ch:
			return sig == syscall.SIGUSR1
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "expected restored subscription to receive SIGUSR1")
}

func TestWithDefaultRestoresOnPanic(t *testing.T) {
	ch := make(chan os.Signal, 1)
	signalNotifyForTest(t, ch, syscall.SIGUSR2)

	require.Panics(t, func() {
		WithDefault([]Subscription{{Signal: syscall.SIGUSR2, Chan: ch}}, func() {
			panic("boom")
		})
	})

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))
	require.Eventually(t, func() bool {
		select {
		case sig := <-ch:
			return sig == syscall.SIGUSR2
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "expected restored subscription to receive SIGUSR2 even after panic")
}
