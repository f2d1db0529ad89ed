package wire

// MatchSettings are the host-provided parameters of a match, as defined
// in spec.md §3. Passcode and MatchID are assigned by the server.
type MatchSettings struct {
	Color      ColorOpt
	Clock      ClockOpt
	Variant    Variant
	Visibility Visibility
	Passcode   int64
	MatchID    int64
}

// Greet holds the two version words of a C2SGreet. The two directions
// are encoded differently: DecodeC2SGreet reads version1, version2 and
// four ignored padding words, while EncodeS2CGreet always writes
// version 1 followed by five zero words.
type Greet struct {
	Version1 int64
	Version2 int64
}

// MatchCreateOrJoin is C2SMatchCreateOrJoin. A negative Passcode means
// "create a match with these settings"; a non-negative Passcode means
// "join the match with this passcode" (the other fields are ignored).
type MatchCreateOrJoin struct {
	Color      ColorOpt
	Clock      ClockOpt
	Variant    Variant
	Visibility Visibility
	Passcode   int64
}

// IsJoin reports whether this message is a join-by-passcode request.
func (m MatchCreateOrJoin) IsJoin() bool {
	return m.Passcode >= 0
}

// MatchCreateOrJoinResult is S2CMatchCreateOrJoinResult. Ok and Settings
// are only meaningful when Ok is true; on failure the wire form carries
// zeroed fields and Passcode -1, which Encode produces automatically.
type MatchCreateOrJoinResult struct {
	Ok       bool
	Settings MatchSettings
}

// MatchCancelResult is S2CMatchCancelResult.
type MatchCancelResult struct {
	Ok bool
}

// MatchStart is S2CMatchStart, delivered to both host and joiner (with
// Color reversed between the two) at the moment a match begins.
type MatchStart struct {
	Clock     ClockOpt
	Variant   Variant
	MatchID   int64
	Color     Color
	MessageID uint64
}

// Action is the shared body of C2SOrS2CAction, relayed verbatim between
// peers (save for MessageID, which the server always overwrites).
type Action struct {
	ActionType    ActionType
	Color         Color
	MessageID     uint64
	SrcL          int64
	SrcT          int64
	SrcBoardColor Color
	SrcY          int64
	SrcX          int64
	DstL          int64
	DstT          int64
	DstBoardColor Color
	DstY          int64
	DstX          int64
}

// PublicListingEntry is one row of the public_matches array in
// S2CMatchList — a MatchSettings stripped of Visibility and MatchID.
type PublicListingEntry struct {
	Color    ColorOpt
	Clock    ClockOpt
	Variant  Variant
	Passcode int64
}

// HistoryEntry is one row of the history array in S2CMatchList.
type HistoryEntry struct {
	Status        HistoryStatus
	Clock         ClockOpt
	Variant       Variant
	Visibility    Visibility
	SecondsPassed int64
}

// MatchList is S2CMatchList. When IsHost is false, EncodeMatchList
// writes zeros for the four host_* words and is_host, whatever the
// Host* fields hold.
type MatchList struct {
	IsHost       bool
	HostColor    ColorOpt
	HostClock    ClockOpt
	HostVariant  Variant
	HostPasscode int64

	Public      []PublicListingEntry // at most MaxListEntries, insertion order
	History     []HistoryEntry       // at most MaxListEntries, newest first
}
