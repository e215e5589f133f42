package service_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/jobfeed/config"
	"github.com/orchestra-mcp/jobfeed/src/hub"
	"github.com/orchestra-mcp/jobfeed/src/service"
	"github.com/orchestra-mcp/jobfeed/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	mu      sync.Mutex
	written []types.Message
	readCh  chan types.Action
	done    chan struct{}
	once    sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{readCh: make(chan types.Action, 8), done: make(chan struct{})}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := v.(types.Message); ok {
		m.written = append(m.written, msg)
	}
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	select {
	case a := <-m.readCh:
		*(v.(*types.Action)) = a
		return nil
	case <-m.done:
		return errors.New("closed")
	}
}

func (m *mockConn) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *mockConn) messages() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Message(nil), m.written...)
}

func newTestService(t *testing.T) (*service.Service, *hub.Hub) {
	t.Helper()
	cfg := config.DefaultConfig()
	// Log batches flush on size only, keeping frame boundaries deterministic.
	cfg.BatchIntervalMs = 60000
	cfg.MaxBatchSize = 2
	cfg.PingInterval = 0
	h := hub.New(cfg, zerolog.Nop())
	svc := service.New(h, zerolog.Nop())
	go h.Run()
	t.Cleanup(h.Stop)
	return svc, h
}

func connect(t *testing.T, h *hub.Hub, id string) *mockConn {
	t.Helper()
	conn := newMockConn()
	c := hub.NewClient(id, conn, h)
	h.Register(c)
	go c.WritePump()
	go c.ReadPump()
	require.Eventually(t, func() bool { return h.ClientInfo(id) != nil }, time.Second, 5*time.Millisecond)
	return conn
}

func TestPublishHelpersReachSubscriber(t *testing.T) {
	svc, h := newTestService(t)
	conn := connect(t, h, "viewer")
	require.NoError(t, svc.Subscribe("job-1", "viewer"))

	require.NoError(t, svc.PublishStatus("job-1", types.StatusRunning, 0, "started", ""))
	require.NoError(t, svc.PublishProgress("job-1", 50))
	require.NoError(t, svc.PublishLog("job-1", "step 1", "step 2"))

	require.Eventually(t, func() bool { return len(conn.messages()) == 4 }, time.Second, 5*time.Millisecond)
	got := conn.messages()
	assert.Equal(t, types.Connected{ChannelID: "job-1"}, got[0])
	assert.Equal(t, types.Status{ChannelID: "job-1", Status: types.StatusRunning, Message: "started"}, got[1])
	assert.Equal(t, types.Progress{ChannelID: "job-1", Percent: 50}, got[2])
	assert.Equal(t, types.NewBatch(
		types.Log{ChannelID: "job-1", Line: "step 1"},
		types.Log{ChannelID: "job-1", Line: "step 2"},
	), got[3])
}

func TestSubscribeFlushesThenReplaysTail(t *testing.T) {
	svc, h := newTestService(t)
	require.NoError(t, svc.PublishProgress("job-1", 10))
	// The line stays pending: the batch size is two and the interval is long.
	require.NoError(t, svc.PublishLog("job-1", "pending"))
	require.Eventually(t, func() bool { return len(h.Tail("job-1")) == 2 }, time.Second, 5*time.Millisecond)

	conn := connect(t, h, "late")
	require.NoError(t, svc.Subscribe("job-1", "late"))
	require.NoError(t, svc.PublishProgress("job-1", 20))

	require.Eventually(t, func() bool { return len(conn.messages()) == 3 }, time.Second, 5*time.Millisecond)
	got := conn.messages()
	assert.Equal(t, types.Connected{ChannelID: "job-1"}, got[0])
	assert.Equal(t, types.NewBatch(
		types.Progress{ChannelID: "job-1", Percent: 10},
		types.Log{ChannelID: "job-1", Line: "pending"},
	), got[1])
	assert.Equal(t, types.Progress{ChannelID: "job-1", Percent: 20}, got[2])
}

func TestPublishRejectsInvalidEvents(t *testing.T) {
	svc, _ := newTestService(t)

	assert.ErrorIs(t, svc.PublishStatus("job-1", "", 0, "", ""), service.ErrInvalidEvent)
	assert.ErrorIs(t, svc.Publish("", types.Progress{Percent: 1}), service.ErrInvalidEvent)
	assert.ErrorIs(t, svc.Publish(hub.AggregateChannel, types.Progress{Percent: 1}), service.ErrInvalidEvent)
	assert.ErrorIs(t, svc.Publish("job-1", types.NewBatch()), service.ErrInvalidEvent)
}

func TestReplayAction(t *testing.T) {
	svc, h := newTestService(t)
	require.NoError(t, svc.PublishProgress("job-1", 10))
	require.Eventually(t, func() bool { return len(h.Tail("job-1")) == 1 }, time.Second, 5*time.Millisecond)

	conn := connect(t, h, "late")
	conn.readCh <- types.Action{Action: types.ActionReplay, Channel: "job-1"}

	require.Eventually(t, func() bool { return len(conn.messages()) == 2 }, time.Second, 5*time.Millisecond)
	got := conn.messages()
	assert.Equal(t, types.Connected{ChannelID: "job-1"}, got[0])
	assert.Equal(t, types.NewBatch(types.Progress{ChannelID: "job-1", Percent: 10}), got[1])

	// Replay does not subscribe.
	assert.Empty(t, h.Channels())
}

func TestSubscriptionErrors(t *testing.T) {
	svc, h := newTestService(t)

	assert.ErrorIs(t, svc.Subscribe("job-1", "ghost"), service.ErrUnknownClient)
	assert.Error(t, svc.Unsubscribe("job-1", "ghost"))

	connect(t, h, "c1")
	require.NoError(t, svc.Subscribe("job-1", "c1"))
	assert.Equal(t, map[string]int{"job-1": 1}, svc.GetChannels())
	require.NoError(t, svc.Unsubscribe("job-1", "c1"))
	assert.Empty(t, svc.GetChannels())
}

func TestClientQueries(t *testing.T) {
	svc, h := newTestService(t)
	conn := connect(t, h, "c1")

	assert.Equal(t, []string{"c1"}, svc.GetConnectedClients())

	info, err := svc.GetClientInfo("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", info.ID)

	_, err = svc.GetClientInfo("ghost")
	assert.ErrorIs(t, err, service.ErrUnknownClient)

	require.NoError(t, svc.SendToClient("c1", types.Connected{ChannelID: "direct"}))
	assert.ErrorIs(t, svc.SendToClient("ghost", types.Connected{ChannelID: "direct"}), service.ErrUnknownClient)
	require.Eventually(t, func() bool { return len(conn.messages()) == 1 }, time.Second, 5*time.Millisecond)
}
