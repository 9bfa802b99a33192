package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAuctionTypeDispatchTag(t *testing.T) {
	t.Parallel()
	if AuctionDutch != "dutch" {
		t.Errorf("AuctionDutch = %q, want %q", AuctionDutch, "dutch")
	}
}

func TestBookingStatusDistinctFromSplitStatus(t *testing.T) {
	t.Parallel()
	b := Booking{Status: BookingActive, SplitStatus: SplitNone}
	if b.Status == BookingStatus(b.SplitStatus) {
		t.Errorf("booking status and split status share a value; they must stay independent")
	}
}

func TestAgentCarriesBehaviorVectorAndPreferences(t *testing.T) {
	t.Parallel()
	a := Agent{
		TokenBalance: decimal.NewFromInt(100),
		Behavior:     BehaviorVector{PreferredPeriod: "morning", TimeWeight: 0.5},
		Preferences: []AgentPreference{
			{PreferenceType: "location", PreferenceValue: "library", Weight: 0.8},
		},
	}
	if len(a.Preferences) != 1 || a.Preferences[0].PreferenceValue != "library" {
		t.Errorf("agent preferences not wired correctly: %+v", a.Preferences)
	}
	if a.Behavior.PreferredPeriod != "morning" {
		t.Errorf("behavior vector not set: %+v", a.Behavior)
	}
}
