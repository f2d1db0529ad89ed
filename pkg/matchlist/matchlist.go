// Package matchlist builds S2CMatchList responses from the shared
// registries, per spec.md §4.5.
package matchlist

import (
	"github.com/5dchess/5dcserver/pkg/state"
	"github.com/5dchess/5dcserver/pkg/wire"
)

// HostView, when non-nil, describes the requesting connection's own
// waiting match, included in the response's host_* fields.
type HostView struct {
	Color    wire.ColorOpt
	Clock    wire.ClockOpt
	Variant  wire.Variant
	Passcode int64
}

// Build assembles a MatchList for one C2SMatchListRequest. host is nil
// for a connection that isn't currently hosting a waiting match.
func Build(s *state.Server, host *HostView) wire.MatchList {
	ml := wire.MatchList{
		Public:  s.PublicListing(),
		History: s.HistoryListing(),
	}
	if host != nil {
		ml.IsHost = true
		ml.HostColor = host.Color
		ml.HostClock = host.Clock
		ml.HostVariant = host.Variant
		ml.HostPasscode = host.Passcode
	}
	return ml
}
