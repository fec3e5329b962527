package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeEngine drops a shell script standing in for the engine worker
// binary. It answers requests positionally, which matches the sequential
// ids the channel assigns.
func writeFakeEngine(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "engine-worker")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))

	return path
}

func startWorker(t *testing.T, script string) *WorkerProcess {
	t.Helper()

	w, err := NewWorkerProcess(Options{
		Bin:        writeFakeEngine(t, script),
		LogLevel:   "warn",
		RTCMinPort: 40000,
		RTCMaxPort: 49999,
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	return w
}

const handshakeLine = `read line
echo '{"id":1,"accepted":true,"data":{"codecs":[{"kind":"audio","mimeType":"audio/opus","clockRate":48000,"channels":2}]}}'
`

func TestWorkerProcessHandshake(t *testing.T) {
	w := startWorker(t, handshakeLine+`read line
`)

	caps := w.RouterRtpCapabilities()
	require.Len(t, caps.Codecs, 1)
	assert.Equal(t, AudioKind, caps.Codecs[0].Kind)
	assert.Equal(t, "audio/opus", caps.Codecs[0].MimeType)
}

func TestWorkerProcessCall(t *testing.T) {
	w := startWorker(t, handshakeLine+`read line
echo '{"id":2,"accepted":true,"data":{"id":"transport-1","iceParameters":{"usernameFragment":"uf","password":"pw"}}}'
read line
echo '{"id":3,"accepted":false,"error":"already closed"}'
read line
`)

	ctx := context.Background()

	info, err := w.CreateTransport(ctx, TransportOptions{Direction: SendDirection, ListenIP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "transport-1", info.ID)
	assert.Equal(t, "uf", info.IceParameters.UsernameFragment)

	err = w.CloseTransport(ctx, "transport-1")
	require.Error(t, err)
	assert.True(t, IsAlreadyClosed(err))
}

func TestWorkerProcessNotificationsSkipped(t *testing.T) {
	w := startWorker(t, handshakeLine+`read line
echo '{"event":"scorechange","accepted":true}'
echo '{"id":2,"accepted":true,"data":{"id":"producer-1","kind":"video"}}'
read line
`)

	info, err := w.Produce(context.Background(), ProduceOptions{TransportID: "transport-1", Kind: VideoKind})
	require.NoError(t, err)
	assert.Equal(t, "producer-1", info.ID)
}

func TestWorkerProcessDeliberateClose(t *testing.T) {
	w := startWorker(t, handshakeLine+`while read line; do :; done
`)

	require.NoError(t, w.Close())

	select {
	case err := <-w.Died():
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not report shutdown")
	}

	_, err := w.call(context.Background(), "produce", nil)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestWorkerProcessDeathWithCallInFlight(t *testing.T) {
	// the worker reads the request and exits without answering it
	w := startWorker(t, handshakeLine+`read line
exit 7
`)

	_, err := w.Produce(context.Background(), ProduceOptions{TransportID: "transport-1", Kind: AudioKind})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine worker died")

	// the failed call must not swallow the death notification
	select {
	case err := <-w.Died():
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker death not reported")
	}
}

func TestWorkerProcessDeath(t *testing.T) {
	w := startWorker(t, handshakeLine+`sleep 1
exit 7
`)

	select {
	case err := <-w.Died():
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker death not reported")
	}
}
