package realtime

import (
	"testing"
	"time"

	"github.com/orchestra-mcp/jobfeed/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects delivered messages under a label.
type recorder struct {
	calls []string
	msgs  []types.Message
}

func (r *recorder) handler(label string) Handler {
	return func(msg types.Message) {
		r.calls = append(r.calls, label)
		r.msgs = append(r.msgs, msg)
	}
}

func TestHandlersRunInSubscriptionOrder(t *testing.T) {
	h := newHarness(t, nil)
	rec := &recorder{}
	h.client.Subscribe(types.TypeStatus, rec.handler("first"))
	h.client.Subscribe(types.TypeStatus, rec.handler("second"))
	h.client.Subscribe(types.TypeStatus, rec.handler("third"))
	h.client.Subscribe(types.TypeProgress, rec.handler("other"))

	tr := h.connectAndOpen()
	tr.receive(`{"type":"status","channel_id":"job-1","status":"RUNNING","progress":10}`)

	assert.Equal(t, []string{"first", "second", "third"}, rec.calls)
	want := types.Status{ChannelID: "job-1", Status: types.StatusRunning, Progress: 10}
	for _, msg := range rec.msgs {
		assert.Equal(t, want, msg)
	}
}

func TestConnectedMessageDeliveredImmediately(t *testing.T) {
	h := newHarness(t, nil)
	rec := &recorder{}
	h.client.Subscribe(types.TypeConnected, rec.handler("c"))

	h.connectAndOpen().receive(`{"type":"connected","channel_id":"job-9"}`)

	require.Len(t, rec.msgs, 1)
	assert.Equal(t, types.Connected{ChannelID: "job-9"}, rec.msgs[0])
}

func TestBatchOfLogsReachesEveryHandler(t *testing.T) {
	h := newHarness(t, nil)
	var a, b []string
	h.client.Subscribe(types.TypeLog, func(msg types.Message) { a = append(a, msg.(types.Log).Line) })
	h.client.Subscribe(types.TypeLog, func(msg types.Message) { b = append(b, msg.(types.Log).Line) })

	h.connectAndOpen().receive(`{"type":"batch","messages":[{"type":"log","line":"a"},{"type":"log","line":"b"},{"type":"log","line":"c"}],"count":3}`)
	h.clock.Advance(100 * time.Millisecond)

	assert.Equal(t, []string{"a", "b", "c"}, a)
	assert.Equal(t, []string{"a", "b", "c"}, b)
}

func TestBatchMatchesStandaloneDelivery(t *testing.T) {
	frames := []string{
		`{"type":"status","channel_id":"j","status":"RUNNING","progress":5}`,
		`{"type":"progress","channel_id":"j","percent":6}`,
		`{"type":"progress","percent":7}`,
		`{"type":"status","channel_id":"j","status":"COMPLETED","progress":100,"message":"done"}`,
	}

	collect := func(send func(tr *fakeTransport)) []types.Message {
		h := newHarness(t, nil)
		var got []types.Message
		h.client.Subscribe(types.TypeStatus, func(m types.Message) { got = append(got, m) })
		h.client.Subscribe(types.TypeProgress, func(m types.Message) { got = append(got, m) })
		send(h.connectAndOpen())
		return got
	}

	standalone := collect(func(tr *fakeTransport) {
		for _, f := range frames {
			tr.receive(f)
		}
	})
	batched := collect(func(tr *fakeTransport) {
		raw := `{"type":"batch","count":4,"messages":[`
		for i, f := range frames {
			if i > 0 {
				raw += ","
			}
			raw += f
		}
		tr.receive(raw + `]}`)
	})

	require.Len(t, standalone, 4)
	assert.Equal(t, standalone, batched)
}

func TestNestedBatchIsFlattened(t *testing.T) {
	h := newHarness(t, nil)
	var got []float64
	h.client.Subscribe(types.TypeProgress, func(m types.Message) { got = append(got, m.(types.Progress).Percent) })

	h.connectAndOpen().receive(`{"type":"batch","count":2,"messages":[
		{"type":"progress","percent":1},
		{"type":"batch","count":2,"messages":[{"type":"progress","percent":2},{"type":"progress","percent":3}]}
	]}`)

	assert.Equal(t, []float64{1, 2, 3}, got)
}

func TestBatchSubscribersNeverFire(t *testing.T) {
	h := newHarness(t, nil)
	fired := 0
	h.client.Subscribe(types.TypeBatch, func(types.Message) { fired++ })

	h.connectAndOpen().receive(`{"type":"batch","count":1,"messages":[{"type":"progress","percent":1}]}`)
	h.clock.Advance(time.Second)

	assert.Zero(t, fired)
}

func TestUnsubscribeRemovesOnlyTarget(t *testing.T) {
	h := newHarness(t, nil)
	rec := &recorder{}
	first := h.client.Subscribe(types.TypeProgress, rec.handler("first"))
	h.client.Subscribe(types.TypeProgress, rec.handler("second"))

	tr := h.connectAndOpen()
	tr.receive(`{"type":"progress","percent":1}`)
	assert.True(t, h.client.Unsubscribe(types.TypeProgress, first))
	tr.receive(`{"type":"progress","percent":2}`)

	assert.Equal(t, []string{"first", "second", "second"}, rec.calls)
	assert.Equal(t, 1, h.client.SubscriberCount(types.TypeProgress))
}

func TestUnsubscribeMatchesRegistrationNotFunction(t *testing.T) {
	h := newHarness(t, nil)
	count := 0
	fn := func(types.Message) { count++ }
	sub := h.client.Subscribe(types.TypeProgress, fn)
	h.client.Subscribe(types.TypeProgress, fn)

	assert.True(t, h.client.Unsubscribe(types.TypeProgress, sub))
	assert.False(t, h.client.Unsubscribe(types.TypeProgress, sub))
	assert.False(t, h.client.Unsubscribe(types.TypeStatus, sub))
	assert.False(t, h.client.Unsubscribe(types.TypeProgress, nil))

	h.connectAndOpen().receive(`{"type":"progress","percent":1}`)
	assert.Equal(t, 1, count)
}

func TestSubscriptionsSurviveReconnect(t *testing.T) {
	h := newHarness(t, nil)
	rec := &recorder{}
	h.client.Subscribe(types.TypeConnected, rec.handler("c"))

	h.connectAndOpen().dropAbnormally()
	h.clock.Advance(time.Second)
	tr := h.dialer.last()
	tr.open()
	tr.receive(`{"type":"connected","channel_id":"job-1"}`)

	assert.Equal(t, []string{"c"}, rec.calls)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	fired := 0
	for _, typ := range []types.MessageType{types.TypeConnected, types.TypeStatus, types.TypeProgress, types.TypeLog} {
		h.client.Subscribe(typ, func(types.Message) { fired++ })
	}

	tr := h.connectAndOpen()
	for _, raw := range []string{
		``,
		`garbage`,
		`{"type":`,
		`{"type":"unknown"}`,
		`{"type":"status"}`,
		`{"type":"batch","messages":[{"type":"log","line":"x"},{"bad":true}],"count":2}`,
		`42`,
	} {
		assert.NotPanics(t, func() { tr.receive(raw) })
	}
	h.clock.Advance(time.Second)

	assert.Zero(t, fired)
	assert.Empty(t, h.recordedErrors())
	assert.Equal(t, Connected, h.client.State())
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	h := newHarness(t, nil)
	rec := &recorder{}
	h.client.Subscribe(types.TypeProgress, func(types.Message) { panic("boom") })
	h.client.Subscribe(types.TypeProgress, rec.handler("survivor"))

	tr := h.connectAndOpen()
	assert.NotPanics(t, func() { tr.receive(`{"type":"progress","percent":3}`) })
	assert.Equal(t, []string{"survivor"}, rec.calls)
}

func TestMessagesFromStaleTransportAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	fired := 0
	h.client.Subscribe(types.TypeProgress, func(types.Message) { fired++ })

	first := h.connectAndOpen()
	h.client.Disconnect()
	first.receive(`{"type":"progress","percent":3}`)

	assert.Zero(t, fired)
}
