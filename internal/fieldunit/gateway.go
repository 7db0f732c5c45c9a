// Package fieldunit bridges responding units on an MQTT broker to the dispatch
// coordinator. Units report status changes and positions; every report is
// answered on the unit's ack topic.
package fieldunit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fire/command/internal/config"
	"fire/command/internal/dispatch"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const ackTimeout = 5 * time.Second

// Commands is the part of the coordinator the gateway drives.
type Commands interface {
	AdvanceStatus(ctx context.Context, id string, ev dispatch.Event) (dispatch.Result, error)
	ReportLocation(ctx context.Context, id string, lat, lon float64) (dispatch.Result, error)
}

// newClient is swapped in tests.
var newClient = func(opts *paho.ClientOptions) paho.Client {
	return paho.NewClient(opts)
}

// StatusReport is published by a unit on <prefix>/units/<unit>/status.
type StatusReport struct {
	CallID string `json:"call_id" validate:"required,uuid"`
	Status string `json:"status" validate:"required"`
}

// LocationReport is published by a unit on <prefix>/units/<unit>/location.
type LocationReport struct {
	CallID    string   `json:"call_id" validate:"required,uuid"`
	Latitude  *float64 `json:"lat" validate:"required,latitude"`
	Longitude *float64 `json:"lon" validate:"required,longitude"`
}

// Ack answers a report on <prefix>/units/<unit>/ack.
type Ack struct {
	CallID  string `json:"call_id,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Gateway subscribes to unit reports and forwards them as commands.
type Gateway struct {
	cfg      config.MQTTConfig
	cmds     Commands
	log      zerolog.Logger
	validate *validator.Validate
	client   paho.Client
}

func New(cfg config.MQTTConfig, cmds Commands, log zerolog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		cmds:     cmds,
		log:      log.With().Str("component", "fieldunit").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Run connects to the broker and serves reports until ctx is cancelled.
// Subscriptions are renewed on every reconnect. Reports are handled one at a
// time in arrival order, so a unit's EN_ROUTE is never applied after the
// ARRIVE it sent next.
func (g *Gateway) Run(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(g.cfg.Broker).
		SetClientID(g.cfg.ClientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true).
		SetOrderMatters(true)
	if g.cfg.Username != "" {
		opts.SetUsername(g.cfg.Username)
		opts.SetPassword(g.cfg.Password)
	}
	opts.SetOnConnectHandler(func(c paho.Client) {
		if err := g.subscribe(ctx, c); err != nil {
			g.log.Error().Err(err).Msg("mqtt subscribe failed")
			return
		}
		g.log.Info().Str("broker", g.cfg.Broker).Msg("field unit gateway connected")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		g.log.Warn().Err(err).Msg("mqtt connection lost")
	})

	g.client = newClient(opts)
	if token := g.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to mqtt broker %s: %w", g.cfg.Broker, token.Error())
	}

	<-ctx.Done()
	g.client.Disconnect(250)
	return nil
}

func (g *Gateway) subscribe(ctx context.Context, c paho.Client) error {
	routes := map[string]paho.MessageHandler{
		g.topic("+", "status"):   func(_ paho.Client, m paho.Message) { g.onStatus(ctx, c, m) },
		g.topic("+", "location"): func(_ paho.Client, m paho.Message) { g.onLocation(ctx, c, m) },
	}
	for topic, handler := range routes {
		token := c.Subscribe(topic, g.cfg.QoS, handler)
		if !token.WaitTimeout(ackTimeout) {
			return fmt.Errorf("subscribing to %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	return nil
}

func (g *Gateway) onStatus(ctx context.Context, c paho.Client, m paho.Message) {
	unit, ok := g.unitFromTopic(m.Topic())
	if !ok {
		return
	}
	var report StatusReport
	if err := g.decode(m.Payload(), &report); err != nil {
		g.reject(c, unit, "status", report.CallID, err)
		return
	}
	ev, err := dispatch.ParseEvent(report.Status)
	if err != nil {
		g.reject(c, unit, "status", report.CallID, err)
		return
	}

	res, err := g.cmds.AdvanceStatus(ctx, report.CallID, ev)
	g.answer(c, unit, "status", report.CallID, res, err)
}

func (g *Gateway) onLocation(ctx context.Context, c paho.Client, m paho.Message) {
	unit, ok := g.unitFromTopic(m.Topic())
	if !ok {
		return
	}
	var report LocationReport
	if err := g.decode(m.Payload(), &report); err != nil {
		g.reject(c, unit, "location", report.CallID, err)
		return
	}

	res, err := g.cmds.ReportLocation(ctx, report.CallID, *report.Latitude, *report.Longitude)
	g.answer(c, unit, "location", report.CallID, res, err)
}

func (g *Gateway) decode(payload []byte, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrInvalidCommand, err)
	}
	if err := g.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", dispatch.ErrInvalidCommand, err)
	}
	return nil
}

func (g *Gateway) reject(c paho.Client, unit, kind, callID string, err error) {
	messagesTotal.WithLabelValues(kind, "invalid").Inc()
	g.log.Warn().Err(err).Str("unit", unit).Str("kind", kind).Msg("field unit report rejected")
	g.publishAck(c, unit, Ack{CallID: callID, Error: err.Error()})
}

func (g *Gateway) answer(c paho.Client, unit, kind, callID string, res dispatch.Result, err error) {
	ack := Ack{CallID: callID}
	if err != nil {
		ack.Error = err.Error()
		messagesTotal.WithLabelValues(kind, outcomeLabel(err)).Inc()
		g.log.Info().Err(err).Str("unit", unit).Str("call_id", callID).Msg("field unit command refused")
	} else {
		ack.Outcome = string(res.Outcome)
		ack.Status = string(res.Call.Status)
		messagesTotal.WithLabelValues(kind, "accepted").Inc()
	}
	g.publishAck(c, unit, ack)
}

func (g *Gateway) publishAck(c paho.Client, unit string, ack Ack) {
	payload, err := json.Marshal(ack)
	if err != nil {
		g.log.Error().Err(err).Msg("encoding ack")
		return
	}
	token := c.Publish(g.topic(unit, "ack"), g.cfg.QoS, false, payload)
	// Handlers run on the client's router; waiting here would stall it.
	go g.watchAck(unit, token)
}

func (g *Gateway) watchAck(unit string, token paho.Token) {
	if !token.WaitTimeout(ackTimeout) {
		g.log.Warn().Str("unit", unit).Msg("ack publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		g.log.Warn().Err(err).Str("unit", unit).Msg("ack publish failed")
	}
}

func (g *Gateway) topic(unit, leaf string) string {
	return strings.Join([]string{g.cfg.TopicPrefix, "units", unit, leaf}, "/")
}

// unitFromTopic extracts <unit> from <prefix>/units/<unit>/<leaf>.
func (g *Gateway) unitFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, g.cfg.TopicPrefix+"/units/")
	if !ok {
		return "", false
	}
	unit, _, ok := strings.Cut(rest, "/")
	if !ok || unit == "" {
		return "", false
	}
	return unit, true
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, dispatch.ErrNotFound):
		return "not_found"
	case errors.Is(err, dispatch.ErrInvalidCommand):
		return "invalid"
	default:
		return "error"
	}
}
