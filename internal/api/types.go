package api

import (
	"time"

	"roomauction/internal/service"
	"roomauction/pkg/types"
)

// DashboardSnapshot is the complete dashboard state sent on WebSocket
// connect and served from /api/snapshot.
type DashboardSnapshot struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Market     *service.MarketState       `json:"market"`
	Simulation *service.SimulationResults `json:"simulation"`
}

// AuctionEvent is the wire shape for an auction state change.
type AuctionEvent struct {
	AuctionID    string              `json:"auction_id"`
	TimeSlotID   string              `json:"time_slot_id"`
	Status       types.AuctionStatus `json:"status"`
	CurrentPrice string              `json:"current_price"`
	Tick         int                 `json:"tick"`
}

// NewAuctionEvent converts an Auction into its wire event.
func NewAuctionEvent(a types.Auction) AuctionEvent {
	return AuctionEvent{
		AuctionID:    a.ID,
		TimeSlotID:   a.TimeSlotID,
		Status:       a.Status,
		CurrentPrice: a.CurrentPrice.String(),
		Tick:         a.Tick,
	}
}

// BidEvent is the wire shape for a bid placement or fill.
type BidEvent struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	AgentID   string          `json:"agent_id"`
	Amount    string          `json:"amount"`
	Status    types.BidStatus `json:"status"`
}

// NewBidEvent converts a Bid into its wire event.
func NewBidEvent(b types.Bid) BidEvent {
	return BidEvent{
		BidID:     b.ID,
		AuctionID: b.AuctionID,
		AgentID:   b.AgentID,
		Amount:    b.Amount.String(),
		Status:    b.Status,
	}
}

// BookingEvent is the wire shape for a booking state change.
type BookingEvent struct {
	BookingID  string              `json:"booking_id"`
	TimeSlotID string              `json:"time_slot_id"`
	AgentID    string              `json:"agent_id"`
	Status     types.BookingStatus `json:"status"`
}

// NewBookingEvent converts a Booking into its wire event.
func NewBookingEvent(b types.Booking) BookingEvent {
	return BookingEvent{
		BookingID:  b.ID,
		TimeSlotID: b.TimeSlotID,
		AgentID:    b.AgentID,
		Status:     b.Status,
	}
}

// LimitOrderEvent is the wire shape for a limit order state change.
type LimitOrderEvent struct {
	OrderID string                 `json:"order_id"`
	AgentID string                 `json:"agent_id"`
	Status  types.LimitOrderStatus `json:"status"`
	Reason  string                 `json:"reason,omitempty"`
}

// NewLimitOrderEvent converts a LimitOrder into its wire event.
func NewLimitOrderEvent(o types.LimitOrder) LimitOrderEvent {
	return LimitOrderEvent{
		OrderID: o.ID,
		AgentID: o.AgentID,
		Status:  o.Status,
		Reason:  o.Reason,
	}
}
