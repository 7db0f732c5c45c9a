package realtime

import (
	"errors"
	"fmt"
)

// ClientMessageType names a message sent by a connected client.
type ClientMessageType string

const (
	MsgSubscribe      ClientMessageType = "SUBSCRIBE"
	MsgUnsubscribe    ClientMessageType = "UNSUBSCRIBE"
	MsgStatusUpdate   ClientMessageType = "STATUS_UPDATE"
	MsgLocationUpdate ClientMessageType = "LOCATION_UPDATE"
)

var ErrInvalidMessage = errors.New("invalid client message")

// ClientMessage is the inbound frame. Which fields are required depends on Type.
type ClientMessage struct {
	Type      ClientMessageType `json:"type" validate:"required,oneof=SUBSCRIBE UNSUBSCRIBE STATUS_UPDATE LOCATION_UPDATE"`
	RequestID string            `json:"request_id,omitempty" validate:"omitempty,max=64"`
	Topic     string            `json:"topic,omitempty" validate:"omitempty,max=128"`
	CallID    string            `json:"call_id,omitempty" validate:"omitempty,uuid"`
	Status    string            `json:"status,omitempty" validate:"omitempty,max=32"`
	Latitude  *float64          `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64          `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

// Check enforces the per-type field requirements that struct tags cannot express.
func (m ClientMessage) Check() error {
	switch m.Type {
	case MsgSubscribe, MsgUnsubscribe:
		if !ValidTopic(m.Topic) {
			return fmt.Errorf("%w: unknown topic %q", ErrInvalidMessage, m.Topic)
		}
	case MsgStatusUpdate:
		if m.CallID == "" || m.Status == "" {
			return fmt.Errorf("%w: call_id and status are required", ErrInvalidMessage)
		}
	case MsgLocationUpdate:
		if m.CallID == "" || m.Latitude == nil || m.Longitude == nil {
			return fmt.Errorf("%w: call_id, latitude and longitude are required", ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}
