package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/krossbar-platform/shmrpc/internal/arena"
	"github.com/krossbar-platform/shmrpc/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPeerPair(t *testing.T) (a, b *Peer) {
	t.Helper()

	arenaAB, err := arena.Create(t.Name()+"-ab", 1<<16, 4096, nil)
	require.NoError(t, err)
	arenaBA, err := arena.Create(t.Name()+"-ba", 1<<16, 4096, nil)
	require.NoError(t, err)

	trA, err := transport.InitShm(t.Name()+"-a", arenaAB, arenaBA.Fd(), 4096, nil)
	require.NoError(t, err)
	trB, err := transport.InitShm(t.Name()+"-b", arenaBA, arenaAB.Fd(), 4096, nil)
	require.NoError(t, err)

	cfg := Config{Name: t.Name(), RateLimit: RateLimit{MessagesPerSecond: 1000, BurstSize: 1000}}
	a = NewPeer(trA, cfg, nil)
	b = NewPeer(trB, cfg, nil)

	t.Cleanup(func() {
		trA.Destroy()
		trB.Destroy()
	})
	return a, b
}

func TestEnvelope_RoundTrip(t *testing.T) {
	env := Envelope{ID: uuid.New(), CorrelationID: uuid.New(), Kind: KindCall, Body: []byte("payload")}
	buf, err := env.Encode()
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, env.CorrelationID, got.CorrelationID)
	assert.Equal(t, env.Kind, got.Kind)
	assert.Equal(t, env.Body, got.Body)
}

func TestPeer_SendAndDispatch(t *testing.T) {
	a, b := newPeerPair(t)

	received := make(chan Envelope, 1)
	b.SetHandler(func(env Envelope, respond func([]byte) error) error {
		received <- env
		return nil
	})

	require.NoError(t, a.Send([]byte("hello")))
	require.NoError(t, b.Dispatch())

	select {
	case env := <-received:
		assert.Equal(t, KindMessage, env.Kind)
		assert.Equal(t, []byte("hello"), env.Body)
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
}

func TestPeer_CallAndRespond(t *testing.T) {
	a, b := newPeerPair(t)

	b.SetHandler(func(env Envelope, respond func([]byte) error) error {
		require.Equal(t, KindCall, env.Kind)
		return respond([]byte("echo:" + string(env.Body)))
	})

	callDone := make(chan struct{})
	var callErr error
	var resp Envelope
	go func() {
		defer close(callDone)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, callErr = a.Call(ctx, []byte("ping"))
	}()

	// Drive b's dispatch loop until the call completes.
	for {
		select {
		case <-callDone:
			require.NoError(t, callErr)
			assert.Equal(t, KindResponse, resp.Kind)
			assert.Equal(t, []byte("echo:ping"), resp.Body)
			return
		default:
			b.Dispatch()
			a.Dispatch()
		}
	}
}
