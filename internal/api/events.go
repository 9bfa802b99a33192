package api

import "time"

// DashboardEvent wraps every event broadcast to dashboard clients.
type DashboardEvent struct {
	Type      string      `json:"type"`       // "snapshot", "auction", "bid", "booking", "limit_order"
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func newDashboardEvent(eventType string, data interface{}) DashboardEvent {
	return DashboardEvent{Type: eventType, Timestamp: time.Now(), Data: data}
}
