package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fire/command/internal/dispatch"
	"fire/command/internal/realtime"
	"fire/command/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireEvent struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, ts *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// readUntil skips frames until one of the wanted type arrives and returns the
// types it skipped on the way.
func readUntil(t *testing.T, conn *websocket.Conn, want string) (wireEvent, []string) {
	t.Helper()
	var skipped []string
	for i := 0; i < 20; i++ {
		ev := readEvent(t, conn)
		if ev.Type == want {
			return ev, skipped
		}
		skipped = append(skipped, ev.Type)
	}
	t.Fatalf("no %s frame, saw %v", want, skipped)
	return wireEvent{}, nil
}

func sendCommand(t *testing.T, conn *websocket.Conn, msg map[string]any) realtime.CommandResult {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	ev, _ := readUntil(t, conn, string(realtime.EventCommandResult))
	var res realtime.CommandResult
	require.NoError(t, json.Unmarshal(ev.Data, &res))
	return res
}

func TestEventStreamSnapshotAndUpdates(t *testing.T) {
	srv, ts := startDemoServer(t)
	existing := createCall(t, ts, fireCall("MEDIUM"))

	conn := dialStream(t, ts, nil)
	first := readEvent(t, conn)
	require.Equal(t, string(realtime.EventSnapshot), first.Type)
	var snap realtime.Snapshot
	require.NoError(t, json.Unmarshal(first.Data, &snap))
	require.Len(t, snap.Calls, 1)
	assert.Equal(t, existing.ID, snap.Calls[0].ID)
	assert.Equal(t, 1, snap.Summary.Pending)
	assert.Eventually(t, func() bool { return srv.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	created := createCall(t, ts, fireCall("HIGH"))
	ev, _ := readUntil(t, conn, string(realtime.EventNewCall))
	assert.Equal(t, realtime.TopicEmergencyCalls, ev.Topic)
	var view realtime.CallView
	require.NoError(t, json.Unmarshal(ev.Data, &view))
	assert.Equal(t, created.ID, view.ID)

	ev, _ = readUntil(t, conn, string(realtime.EventSummaryUpdate))
	var summary dispatch.Summary
	require.NoError(t, json.Unmarshal(ev.Data, &summary))
	assert.Equal(t, 2, summary.Pending)

	res := sendCommand(t, conn, map[string]any{
		"type":       "STATUS_UPDATE",
		"request_id": "req-1",
		"call_id":    created.ID,
		"status":     "CANCELLED",
	})
	assert.Equal(t, "req-1", res.RequestID)
	assert.Empty(t, res.Error)
	assert.Equal(t, string(dispatch.OutcomeAccepted), res.Outcome)
	require.NotNil(t, res.Call)
	assert.Equal(t, "CANCELLED", res.Call.Status)

	got := decode[CallResponse](t, mustGet(t, ts, "/v1/calls/"+created.ID))
	assert.Equal(t, "CANCELLED", got.Status)
}

// gatedStore holds the next List call until release is closed.
type gatedStore struct {
	*store.Memory
	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) arm() (entered, release chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entered, g.release = make(chan struct{}), make(chan struct{})
	return g.entered, g.release
}

func (g *gatedStore) List(ctx context.Context, filter dispatch.CallFilter) ([]dispatch.Call, error) {
	g.mu.Lock()
	entered, release := g.entered, g.release
	g.entered, g.release = nil, nil
	g.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	return g.Memory.List(ctx, filter)
}

func TestEventStreamSkipsEventsCoveredBySnapshot(t *testing.T) {
	backend := &gatedStore{Memory: store.NewMemory(store.DemoRoster())}
	srv, ts := startServer(t, backend, nil)
	ctx := context.Background()
	call := createCall(t, ts, fireCall("HIGH"))

	entered, release := backend.arm()
	conn := dialStream(t, ts, nil)
	<-entered

	// The subscriber is registered and its snapshot is not read yet.
	_, err := srv.coord.RequestDispatch(ctx, call.ID)
	require.NoError(t, err)
	_, err = srv.coord.AdvanceStatus(ctx, call.ID, dispatch.EventEnRoute)
	require.NoError(t, err)
	close(release)

	first := readEvent(t, conn)
	require.Equal(t, string(realtime.EventSnapshot), first.Type)
	var snap realtime.Snapshot
	require.NoError(t, json.Unmarshal(first.Data, &snap))
	require.Len(t, snap.Calls, 1)
	assert.Equal(t, "EN_ROUTE", snap.Calls[0].Status)

	marker := createCall(t, ts, fireCall("LOW"))
	summaryVersion := snap.Summary.Version
	for {
		ev := readEvent(t, conn)
		switch realtime.EventType(ev.Type) {
		case realtime.EventStatusUpdate:
			var change realtime.StatusChange
			require.NoError(t, json.Unmarshal(ev.Data, &change))
			assert.NotEqual(t, call.ID, change.Call.ID, "update already in the snapshot was replayed as %s", change.Call.Status)
		case realtime.EventSummaryUpdate:
			var summary dispatch.Summary
			require.NoError(t, json.Unmarshal(ev.Data, &summary))
			assert.Greater(t, summary.Version, summaryVersion, "summary stepped back")
			summaryVersion = summary.Version
		case realtime.EventNewCall:
			var view realtime.CallView
			require.NoError(t, json.Unmarshal(ev.Data, &view))
			if view.ID == marker.ID {
				assert.Equal(t, 1, snap.Summary.EnRoute)
				return
			}
		}
	}
}

func TestEventStreamCommandErrors(t *testing.T) {
	_, ts := startDemoServer(t)
	call := createCall(t, ts, fireCall("LOW"))
	conn := dialStream(t, ts, nil)
	readUntil(t, conn, string(realtime.EventSnapshot))

	cases := []struct {
		name string
		msg  map[string]any
		want string
	}{
		{"unknown topic", map[string]any{"type": "SUBSCRIBE", "request_id": "a", "topic": "weather"}, "invalid"},
		{"unknown type", map[string]any{"type": "PING", "request_id": "b"}, "oneof"},
		{"illegal transition", map[string]any{"type": "STATUS_UPDATE", "request_id": "c", "call_id": call.ID, "status": "ON_SCENE"}, "invalid status transition"},
		{"location before dispatch", map[string]any{"type": "LOCATION_UPDATE", "request_id": "d", "call_id": call.ID, "latitude": 37.5, "longitude": 127.0}, "invalid status transition"},
		{"missing coordinates", map[string]any{"type": "LOCATION_UPDATE", "request_id": "e", "call_id": call.ID}, "invalid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := sendCommand(t, conn, tc.msg)
			assert.Equal(t, tc.msg["request_id"], res.RequestID)
			assert.Empty(t, res.Outcome)
			assert.Contains(t, res.Error, tc.want)
		})
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev, _ := readUntil(t, conn, string(realtime.EventCommandResult))
	var res realtime.CommandResult
	require.NoError(t, json.Unmarshal(ev.Data, &res))
	assert.Equal(t, errInvalidPayload, res.Error)

	got := decode[CallResponse](t, mustGet(t, ts, "/v1/calls/"+call.ID))
	assert.Equal(t, "PENDING", got.Status)
}

func TestEventStreamSubscriptions(t *testing.T) {
	srv, ts := startDemoServer(t)
	conn := dialStream(t, ts, nil)
	readUntil(t, conn, string(realtime.EventSnapshot))

	res := sendCommand(t, conn, map[string]any{"type": "UNSUBSCRIBE", "topic": realtime.TopicSystemAlerts})
	require.Empty(t, res.Error)

	_, err := srv.coord.BroadcastAlert(dispatch.AlertInfo, "muted")
	require.NoError(t, err)
	createCall(t, ts, fireCall("LOW"))

	_, skipped := readUntil(t, conn, string(realtime.EventNewCall))
	assert.NotContains(t, skipped, string(realtime.EventSystemAlert))

	res = sendCommand(t, conn, map[string]any{"type": "SUBSCRIBE", "topic": realtime.TopicSystemAlerts})
	require.Empty(t, res.Error)
	_, err = srv.coord.BroadcastAlert(dispatch.AlertCritical, "heard")
	require.NoError(t, err)

	ev, _ := readUntil(t, conn, string(realtime.EventSystemAlert))
	var alert realtime.AlertPayload
	require.NoError(t, json.Unmarshal(ev.Data, &alert))
	assert.Equal(t, "heard", alert.Message)
	assert.Equal(t, "CRITICAL", alert.AlertType)
}

func TestEventStreamUnregistersOnClose(t *testing.T) {
	srv, ts := startDemoServer(t)
	conn := dialStream(t, ts, nil)
	readUntil(t, conn, string(realtime.EventSnapshot))
	require.Eventually(t, func() bool { return srv.hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return srv.hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventStreamRejectsForeignOrigin(t *testing.T) {
	_, ts := startDemoServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestPingPeriod(t *testing.T) {
	assert.Equal(t, 9*time.Second, pingPeriod(10*time.Second))
}
