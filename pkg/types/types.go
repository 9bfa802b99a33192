// Package types is the domain vocabulary for roomauction: resources, time
// slots, auctions, bids, agents, bookings, ledger transactions, limit
// orders, and the admin configuration singleton. Nothing in this package
// talks to a database, a clock, or a network — it is pure data plus the
// small enums and helpers attached to it.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ———————————————————————————————————————————————————————————————
// Core enums
// ———————————————————————————————————————————————————————————————

// SlotStatus is the lifecycle state of a TimeSlot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotInAuction SlotStatus = "in_auction"
	SlotBooked    SlotStatus = "booked"
)

// AuctionStatus is the lifecycle state of an Auction.
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionActive    AuctionStatus = "active"
	AuctionCompleted AuctionStatus = "completed"
	AuctionCancelled AuctionStatus = "cancelled"
)

// BidStatus is the lifecycle state of a Bid.
type BidStatus string

const (
	BidPending  BidStatus = "pending"
	BidAccepted BidStatus = "accepted"
	BidRejected BidStatus = "rejected"
)

// LimitOrderStatus is the lifecycle state of a LimitOrder.
type LimitOrderStatus string

const (
	LimitOrderPending   LimitOrderStatus = "pending"
	LimitOrderExecuted  LimitOrderStatus = "executed"
	LimitOrderCancelled LimitOrderStatus = "cancelled"
	LimitOrderExpired   LimitOrderStatus = "expired"
)

// SplitStatus tracks a booking's peer-split payment lifecycle.
type SplitStatus string

const (
	SplitNone     SplitStatus = ""
	SplitPending  SplitStatus = "pending"
	SplitAccepted SplitStatus = "accepted"
	SplitRejected SplitStatus = "rejected"
)

// BookingStatus is the lifecycle state of a Booking.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
)

// TransactionKind labels why a Transaction row exists.
type TransactionKind string

const (
	TxKindTokenGrant         TransactionKind = "token_grant"
	TxKindBidPayment         TransactionKind = "bid_payment"
	TxKindSellBackRefund     TransactionKind = "sell_back_refund"
	TxKindSplitPayment       TransactionKind = "split_payment"
	TxKindSplitReimbursement TransactionKind = "split_reimbursement"
)

// AuctionType is the tag used by the auction dispatch table in
// internal/auction. Only "dutch" is registered today; the type exists so
// a future strategy can be added without touching call sites.
type AuctionType string

// AuctionDutch is the only auction strategy currently registered.
const AuctionDutch AuctionType = "dutch"

// ———————————————————————————————————————————————————————————————
// Resource catalogue
// ———————————————————————————————————————————————————————————————

// Resource is a bookable physical room.
type Resource struct {
	ID       string `gorm:"primaryKey"`
	Building string
	Name     string
	Capacity int
	// LocationTag is the popularity-lookup key (usually Building),
	// used by the pricing engine's location demand score.
	LocationTag string
}

// TimeSlot is one bookable interval of a Resource.
type TimeSlot struct {
	ID         string `gorm:"primaryKey"`
	ResourceID string
	Resource   *Resource `gorm:"foreignKey:ResourceID"`
	Start      time.Time
	End        time.Time
	Status     SlotStatus
}

// ———————————————————————————————————————————————————————————————
// Auctions
// ———————————————————————————————————————————————————————————————

// PriceHistory is one recorded price tick for an Auction.
type PriceHistory struct {
	ID         string `gorm:"primaryKey"`
	AuctionID  string
	Price      decimal.Decimal `gorm:"type:decimal(20,6)"`
	RecordedAt time.Time
}

// Auction is one descending-price sale of a TimeSlot.
type Auction struct {
	ID              string `gorm:"primaryKey"`
	TimeSlotID      string
	TimeSlot        *TimeSlot `gorm:"foreignKey:TimeSlotID"`
	AuctionType     AuctionType
	Status          AuctionStatus
	StartPrice      decimal.Decimal `gorm:"type:decimal(20,6)"`
	CurrentPrice    decimal.Decimal `gorm:"type:decimal(20,6)"`
	MinPrice        decimal.Decimal `gorm:"type:decimal(20,6)"`
	PriceStep       decimal.Decimal `gorm:"type:decimal(20,6)"`
	TickIntervalSec float64
	// Tick counts the number of ticks applied; the dashboard's auction
	// events carry it.
	Tick int
	// ReboundFloor is true once the price has hit MinPrice and started
	// climbing back up instead of decaying further (spec's rebound phase).
	ReboundFloor bool
	ClearingPrice *decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt     time.Time
	StartedAt     *time.Time
	EndedAt       *time.Time
	Bids          []Bid          `gorm:"foreignKey:AuctionID"`
	PriceHistory  []PriceHistory `gorm:"foreignKey:AuctionID"`
}

// Bid is one attempt to purchase a TimeSlot out of an active Auction,
// either solo or as a group (see GroupBidMember).
type Bid struct {
	ID               string `gorm:"primaryKey"`
	AuctionID        string
	AgentID          string
	Amount           decimal.Decimal `gorm:"type:decimal(20,6)"`
	IsGroupBid       bool
	SplitWithAgentID string
	Status           BidStatus
	PlacedAt         time.Time
	GroupMembers     []GroupBidMember `gorm:"foreignKey:BidID"`
}

// GroupBidMember is one participant's token contribution toward a group Bid.
type GroupBidMember struct {
	ID           string `gorm:"primaryKey"`
	BidID        string
	AgentID      string
	Contribution decimal.Decimal `gorm:"type:decimal(20,6)"`
}

// ———————————————————————————————————————————————————————————————
// Agents
// ———————————————————————————————————————————————————————————————

// BehaviorVector is the full set of traits an Agent carries, simulated or
// not. The simulator's should_bid formula does not read it (simulated
// agents draw their traits from simulator.ProfileConfig); the vector is
// carried for completeness.
type BehaviorVector struct {
	RiskTolerance    float64
	PriceSensitivity float64
	Flexibility      float64
	PreferredDays    string // CSV of weekday ints, e.g. "0,1,2,3,4"
	PreferredPeriod  string // morning | afternoon | evening | any
	TimeWeight       float64
	DayWeight        float64
	CapacityWeight   float64
	LocationWeight   float64
}

// Agent is a market participant: a human-operated account or a simulated
// bidder.
type Agent struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	TokenBalance decimal.Decimal `gorm:"type:decimal(20,6)"`
	IsActive     bool
	MaxBookings  int
	IsSimulated  bool
	Behavior     BehaviorVector `gorm:"embedded;embeddedPrefix:behavior_"`
	CreatedAt    time.Time

	Preferences []AgentPreference `gorm:"foreignKey:AgentID"`
}

// AgentPreference is one weighted preference row (location or time-of-day)
// stored per agent by the Agents service. The pricing engine's popularity
// lookups and the simulator's preference-match metric do not read it.
type AgentPreference struct {
	ID              string `gorm:"primaryKey"`
	AgentID         string
	PreferenceType  string // "location" | "time_of_day"
	PreferenceValue string
	Weight          float64
}

// ———————————————————————————————————————————————————————————————
// Bookings and the ledger
// ———————————————————————————————————————————————————————————————

// Booking is one agent's confirmed hold on a TimeSlot. Group settlements
// create one Booking per participant (capacity model), never one booking
// for a group leader.
type Booking struct {
	ID               string `gorm:"primaryKey"`
	TimeSlotID       string
	AgentID          string
	BidID            string
	Status           BookingStatus
	SplitStatus      SplitStatus
	SplitWithAgentID string
	CreatedAt        time.Time
}

// Transaction is one append-only ledger row against an Agent's balance.
type Transaction struct {
	ID          string `gorm:"primaryKey"`
	AgentID     string
	Amount      decimal.Decimal `gorm:"type:decimal(20,6)"`
	Kind        TransactionKind
	ReferenceID string
	CreatedAt   time.Time
}

// ———————————————————————————————————————————————————————————————
// Limit orders
// ———————————————————————————————————————————————————————————————

// LimitOrder is a standing instruction to buy a TimeSlot the moment its
// auction's current price falls to or below MaxPrice.
type LimitOrder struct {
	ID         string `gorm:"primaryKey"`
	AgentID    string
	TimeSlotID string
	MaxPrice   decimal.Decimal `gorm:"type:decimal(20,6)"`
	Status     LimitOrderStatus
	Reason     string
	CreatedAt  time.Time
	ExecutedAt *time.Time
	BidID      string
}

// ———————————————————————————————————————————————————————————————
// Admin configuration singleton
// ———————————————————————————————————————————————————————————————

// AdminConfig is the single mutable configuration row governing pricing
// weights, Dutch auction defaults, token allocation, and the simulated
// clock. Mutation happens through a single writer that bumps
// PricingModelVersion.
type AdminConfig struct {
	ID                       int             `gorm:"primaryKey"`
	TokenAllocationAmount    decimal.Decimal `gorm:"type:decimal(20,6)"`
	TokenAllocationFreqHours float64
	MaxBookingsPerAgent      int
	DefaultAuctionType       AuctionType
	DutchStartPrice          decimal.Decimal `gorm:"type:decimal(20,6)"`
	DutchMinPrice            decimal.Decimal `gorm:"type:decimal(20,6)"`
	DutchPriceStep           decimal.Decimal `gorm:"type:decimal(20,6)"`
	DutchTickIntervalSec     float64
	LocationPopularity       map[string]float64 `gorm:"serializer:json"`
	TimePopularity           map[string]float64 `gorm:"serializer:json"`
	CapacityWeight           float64
	LocationWeight           float64
	TimeWeight               float64
	DayOfWeekWeight          float64
	LeadTimeWeight           float64
	GlobalPriceModifier      float64
	PricingModelVersion      int
	SimulatedClock           time.Time
}
