package harness

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type bufSink struct {
	*bytes.Buffer
}

func (bufSink) Close() error { return nil }

func TestRunInvokesEntryAndReturnsExitCode(t *testing.T) {
	var sink bufSink
	sink.Buffer = &bytes.Buffer{}

	gotOpts := map[string]any{}
	code := Run(Config{
		Sink:  sink,
		Level: logrus.InfoLevel,
		Opts:  map[string]any{"greeting": "hi"},
	}, func(ctx context.Context, cfg Config) int {
		gotOpts = cfg.Opts
		require.NoError(t, ctx.Err())
		return 7
	})

	require.Equal(t, 7, code)
	require.Equal(t, "hi", gotOpts["greeting"])
}

func TestRunSignalAwareStopCleansUpAndReturns(t *testing.T) {
	// Without sending a real signal, exercise that installSignalHandlers'
	// stop() cleans up without leaking: Run must still return normally.
	var sink bufSink
	sink.Buffer = &bytes.Buffer{}

	code := Run(Config{Sink: sink, SignalAware: true}, func(ctx context.Context, cfg Config) int {
		require.NoError(t, ctx.Err())
		return 0
	})
	require.Equal(t, 0, code)
}
