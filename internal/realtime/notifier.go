package realtime

import "fire/command/internal/dispatch"

// Notifier turns coordinator callbacks into hub events.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) CallCreated(call dispatch.Call) {
	n.hub.Publish(NewCallEvent(call), TopicEmergencyCalls)
}

func (n *Notifier) CallUpdated(call dispatch.Call, previous dispatch.Status) {
	topics := []string{TopicCallUpdates, CallTopic(call.ID)}
	if call.AssignedStationID != nil {
		topics = append(topics, StationTopic(*call.AssignedStationID))
	}
	n.hub.Publish(StatusEvent(call, previous), topics...)
}

func (n *Notifier) PriorityChanged(call dispatch.Call, previous dispatch.Priority) {
	n.hub.Publish(PriorityEvent(call, previous), TopicCallUpdates, CallTopic(call.ID))
}

func (n *Notifier) LocationReported(call dispatch.Call) {
	n.hub.Publish(LocationEvent(call), TopicCallUpdates, CallTopic(call.ID))
}

func (n *Notifier) SummaryChanged(summary dispatch.Summary) {
	n.hub.Publish(SummaryEvent(summary), TopicDashboard)
}

func (n *Notifier) Alert(alert dispatch.Alert) {
	n.hub.Publish(AlertEvent(alert), TopicSystemAlerts)
}
