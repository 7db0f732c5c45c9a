package fieldunit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"fire/command/internal/config"
	"fire/command/internal/dispatch"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const callID = "0b9d6f0e-3c1a-4d6e-9a7f-2f1f4a6c8e01"

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type stubToken struct{ err error }

func (s stubToken) Wait() bool                     { return true }
func (s stubToken) WaitTimeout(time.Duration) bool { return true }
func (s stubToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (s stubToken) Error() error                   { return s.err }

type published struct {
	topic   string
	payload []byte
}

type mockClient struct {
	opts       *paho.ClientOptions
	connectErr error

	mu           sync.Mutex
	handlers     map[string]paho.MessageHandler
	published    []published
	disconnected bool
}

func (m *mockClient) IsConnected() bool      { return true }
func (m *mockClient) IsConnectionOpen() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return stubToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return stubToken{}
}
func (m *mockClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	m.disconnected = true
	m.mu.Unlock()
}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	m.published = append(m.published, published{topic: topic, payload: payload.([]byte)})
	m.mu.Unlock()
	return stubToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	m.mu.Lock()
	if m.handlers == nil {
		m.handlers = map[string]paho.MessageHandler{}
	}
	m.handlers[topic] = callback
	m.mu.Unlock()
	return stubToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return stubToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return stubToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

func (m *mockClient) handler(topic string) paho.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

// deliver routes a message the way the paho router does: inline when ordered
// delivery is on, on its own goroutine otherwise.
func (m *mockClient) deliver(filter string, msg paho.Message) {
	h := m.handler(filter)
	if m.opts.Order {
		h(m, msg)
		return
	}
	go h(m, msg)
}

func (m *mockClient) acks(t *testing.T) []Ack {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Ack, 0, len(m.published))
	for _, p := range m.published {
		var ack Ack
		require.NoError(t, json.Unmarshal(p.payload, &ack))
		out = append(out, ack)
	}
	return out
}

type fakeCommands struct {
	mu        sync.Mutex
	events    []dispatch.Event
	locations [][2]float64
	err       error
	status    dispatch.Status
	slow      dispatch.Event // held back briefly before it is recorded
}

func (f *fakeCommands) AdvanceStatus(_ context.Context, id string, ev dispatch.Event) (dispatch.Result, error) {
	if f.slow != "" && ev == f.slow {
		time.Sleep(30 * time.Millisecond)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if f.err != nil {
		return dispatch.Result{}, f.err
	}
	if f.status == "" {
		f.status = dispatch.StatusDispatched
	}
	next, err := dispatch.Apply(f.status, ev)
	if err != nil {
		return dispatch.Result{}, err
	}
	f.status = next
	return dispatch.Result{Outcome: dispatch.OutcomeAccepted, Call: dispatch.Call{ID: id, Status: next}}, nil
}

func (f *fakeCommands) ReportLocation(_ context.Context, id string, lat, lon float64) (dispatch.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locations = append(f.locations, [2]float64{lat, lon})
	return dispatch.Result{Outcome: dispatch.OutcomeAccepted, Call: dispatch.Call{ID: id, Status: dispatch.StatusEnRoute}}, nil
}

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{Broker: "tcp://broker:1883", ClientID: "firecommand-test", TopicPrefix: "fire", QoS: 1}
}

// startGateway runs a gateway against a mock client and waits until both
// subscriptions are in place.
func startGateway(t *testing.T, cmds Commands) *mockClient {
	t.Helper()
	mock := &mockClient{}
	orig := newClient
	newClient = func(opts *paho.ClientOptions) paho.Client {
		mock.opts = opts
		return mock
	}
	t.Cleanup(func() { newClient = orig })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	gw := New(testConfig(), cmds, zerolog.Nop())
	go func() { done <- gw.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		return mock.handler("fire/units/+/status") != nil && mock.handler("fire/units/+/location") != nil
	}, time.Second, 5*time.Millisecond)
	return mock
}

func TestGatewayForwardsStatusReport(t *testing.T) {
	cmds := &fakeCommands{}
	mock := startGateway(t, cmds)

	mock.handler("fire/units/+/status")(mock, &fakeMessage{
		topic:   "fire/units/engine-7/status",
		payload: []byte(`{"call_id":"` + callID + `","status":"EN_ROUTE"}`),
	})

	require.Equal(t, []dispatch.Event{dispatch.EventEnRoute}, cmds.events)
	acks := mock.acks(t)
	require.Len(t, acks, 1)
	assert.Equal(t, Ack{CallID: callID, Outcome: "ACCEPTED", Status: "EN_ROUTE"}, acks[0])
	assert.Equal(t, "fire/units/engine-7/ack", mock.published[0].topic)
}

func TestGatewayAppliesUnitReportsInOrder(t *testing.T) {
	cmds := &fakeCommands{slow: dispatch.EventEnRoute}
	mock := startGateway(t, cmds)
	require.True(t, mock.opts.Order)

	mock.deliver("fire/units/+/status", &fakeMessage{
		topic:   "fire/units/engine-7/status",
		payload: []byte(`{"call_id":"` + callID + `","status":"EN_ROUTE"}`),
	})
	mock.deliver("fire/units/+/status", &fakeMessage{
		topic:   "fire/units/engine-7/status",
		payload: []byte(`{"call_id":"` + callID + `","status":"ARRIVE"}`),
	})

	require.Eventually(t, func() bool { return len(mock.acks(t)) == 2 }, time.Second, 5*time.Millisecond)
	cmds.mu.Lock()
	assert.Equal(t, []dispatch.Event{dispatch.EventEnRoute, dispatch.EventArrive}, cmds.events)
	cmds.mu.Unlock()
	acks := mock.acks(t)
	assert.Equal(t, Ack{CallID: callID, Outcome: "ACCEPTED", Status: "EN_ROUTE"}, acks[0])
	assert.Equal(t, Ack{CallID: callID, Outcome: "ACCEPTED", Status: "ON_SCENE"}, acks[1])
}

func TestGatewayForwardsLocationReport(t *testing.T) {
	cmds := &fakeCommands{}
	mock := startGateway(t, cmds)

	mock.handler("fire/units/+/location")(mock, &fakeMessage{
		topic:   "fire/units/ladder-2/location",
		payload: []byte(`{"call_id":"` + callID + `","lat":37.51,"lon":127.02}`),
	})

	require.Len(t, cmds.locations, 1)
	assert.Equal(t, [2]float64{37.51, 127.02}, cmds.locations[0])
	acks := mock.acks(t)
	require.Len(t, acks, 1)
	assert.Empty(t, acks[0].Error)
}

func TestGatewayRejectsBadReports(t *testing.T) {
	cmds := &fakeCommands{}
	mock := startGateway(t, cmds)
	status := mock.handler("fire/units/+/status")
	location := mock.handler("fire/units/+/location")

	status(mock, &fakeMessage{topic: "fire/units/e1/status", payload: []byte(`not json`)})
	status(mock, &fakeMessage{topic: "fire/units/e1/status", payload: []byte(`{"call_id":"nope","status":"EN_ROUTE"}`)})
	status(mock, &fakeMessage{topic: "fire/units/e1/status", payload: []byte(`{"call_id":"` + callID + `","status":"PARTY"}`)})
	location(mock, &fakeMessage{topic: "fire/units/e1/location", payload: []byte(`{"call_id":"` + callID + `","lat":123,"lon":0}`)})
	location(mock, &fakeMessage{topic: "fire/units/e1/location", payload: []byte(`{"call_id":"` + callID + `","lat":1}`)})

	assert.Empty(t, cmds.events)
	assert.Empty(t, cmds.locations)
	acks := mock.acks(t)
	require.Len(t, acks, 5)
	for _, ack := range acks {
		assert.Contains(t, ack.Error, dispatch.ErrInvalidCommand.Error())
	}
}

func TestGatewayReportsRefusedTransition(t *testing.T) {
	cmds := &fakeCommands{}
	mock := startGateway(t, cmds)

	mock.handler("fire/units/+/status")(mock, &fakeMessage{
		topic:   "fire/units/e1/status",
		payload: []byte(`{"call_id":"` + callID + `","status":"CLEARED"}`),
	})

	acks := mock.acks(t)
	require.Len(t, acks, 1)
	assert.Empty(t, acks[0].Outcome)
	assert.Contains(t, acks[0].Error, dispatch.ErrInvalidTransition.Error())
}

func TestGatewayIgnoresForeignTopics(t *testing.T) {
	cmds := &fakeCommands{}
	mock := startGateway(t, cmds)

	mock.handler("fire/units/+/status")(mock, &fakeMessage{
		topic:   "other/units/e1/status",
		payload: []byte(`{"call_id":"` + callID + `","status":"EN_ROUTE"}`),
	})
	assert.Empty(t, cmds.events)
	assert.Empty(t, mock.acks(t))
}

func TestGatewayConnectFailure(t *testing.T) {
	orig := newClient
	newClient = func(opts *paho.ClientOptions) paho.Client {
		return &mockClient{opts: opts, connectErr: assert.AnError}
	}
	t.Cleanup(func() { newClient = orig })

	err := New(testConfig(), &fakeCommands{}, zerolog.Nop()).Run(context.Background())
	require.ErrorIs(t, err, assert.AnError)
}

func TestUnitFromTopic(t *testing.T) {
	gw := New(testConfig(), &fakeCommands{}, zerolog.Nop())
	unit, ok := gw.unitFromTopic("fire/units/engine-7/status")
	assert.True(t, ok)
	assert.Equal(t, "engine-7", unit)

	for _, topic := range []string{"fire/units//status", "fire/units/engine-7", "fire/other/e/status"} {
		_, ok := gw.unitFromTopic(topic)
		assert.False(t, ok, topic)
	}
}
