package wire

import "fmt"

// ColorOpt is a color choice that additionally allows "none" and
// "random", as carried by C2SMatchCreateOrJoin and the listing messages.
type ColorOpt int64

// Legal values of ColorOpt.
const (
	ColorOptNone   ColorOpt = 0
	ColorOptRandom ColorOpt = 1
	ColorOptWhite  ColorOpt = 2
	ColorOptBlack  ColorOpt = 3
)

// Valid reports whether c is one of the legal wire values.
func (c ColorOpt) Valid() bool {
	return c >= ColorOptNone && c <= ColorOptBlack
}

// Color is a resolved (non-random, non-none) player color.
type Color int64

// Legal values of Color.
const (
	ColorWhite Color = 0
	ColorBlack Color = 1
)

// Valid reports whether c is one of the legal wire values.
func (c Color) Valid() bool {
	return c == ColorWhite || c == ColorBlack
}

// Opposite returns the other color.
func (c Color) Opposite() Color {
	if c == ColorWhite {
		return ColorBlack
	}
	return ColorWhite
}

// ClockOpt is a clock preset choice, including "none" and "no clock".
type ClockOpt int64

// Legal values of ClockOpt.
const (
	ClockOptNone    ClockOpt = 0
	ClockOptNoClock ClockOpt = 1
	ClockOptShort   ClockOpt = 2
	ClockOptMedium  ClockOpt = 3
	ClockOptLong    ClockOpt = 4
)

// Valid reports whether c is one of the legal wire values.
func (c ClockOpt) Valid() bool {
	return c >= ClockOptNone && c <= ClockOptLong
}

// Visibility controls whether a waiting match appears in public listings.
type Visibility int64

// Legal values of Visibility.
const (
	VisibilityPublic  Visibility = 1
	VisibilityPrivate Visibility = 2
)

// Valid reports whether v is one of the legal wire values.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// ActionType identifies the kind of in-game action an Action message
// carries.
type ActionType int64

// Legal values of ActionType.
const (
	ActionMove               ActionType = 1
	ActionUndoMove           ActionType = 2
	ActionSubmitMoves        ActionType = 3
	ActionResetPuzzle        ActionType = 4
	ActionDisplayCheckReason ActionType = 5
	ActionHeader             ActionType = 6
)

// Valid reports whether a is one of the legal wire values.
func (a ActionType) Valid() bool {
	return a >= ActionMove && a <= ActionHeader
}

// HistoryStatus is the lifecycle status of a HistoryLog entry.
type HistoryStatus int64

// Legal values of HistoryStatus.
const (
	HistoryCompleted  HistoryStatus = 0
	HistoryInProgress HistoryStatus = 1
)

// Valid reports whether s is one of the legal wire values.
func (s HistoryStatus) Valid() bool {
	return s == HistoryCompleted || s == HistoryInProgress
}

// Variant identifies a game ruleset. The configured allowed set is a
// subset of {1..45}; Variant itself carries no validity constraint
// beyond being a signed 64-bit integer (validity is a config concern,
// see pkg/config).
type Variant int64

// VariantRandom is the sentinel meaning "let the server choose",
// legal only in a Create message before resolution.
const VariantRandom Variant = 0

// MaxPasscode is the largest legal passcode value (12^6 - 1, the
// largest value of six base-12 digits).
const MaxPasscode = 2_985_983

// Type is the wire message type discriminant, the first 8 bytes of
// every payload.
type Type int64

// Legal values of Type, and the exact payload length each carries.
const (
	TypeC2SGreet                     Type = 1
	TypeS2CGreet                     Type = 2
	TypeC2SMatchCreateOrJoin         Type = 3
	TypeS2CMatchCreateOrJoinResult   Type = 4
	TypeC2SMatchCancel               Type = 5
	TypeS2CMatchCancelResult         Type = 6
	TypeS2CMatchStart                Type = 7
	TypeS2COpponentLeft              Type = 9
	TypeC2SForfeit                   Type = 10
	TypeAction                       Type = 11
	TypeC2SMatchListRequest          Type = 12
	TypeS2CMatchList                 Type = 13
)

// legalLength maps each known Type to its fixed total payload length in
// bytes (type word included). A declared length that doesn't match
// this table is rejected with ErrInvalidData.
var legalLength = map[Type]int{
	TypeC2SGreet:                   56,
	TypeS2CGreet:                   56,
	TypeC2SMatchCreateOrJoin:       48,
	TypeS2CMatchCreateOrJoinResult: 64,
	TypeC2SMatchCancel:             9,
	TypeS2CMatchCancelResult:       16,
	TypeS2CMatchStart:              48,
	TypeS2COpponentLeft:            9,
	TypeC2SForfeit:                 9,
	TypeAction:                     112,
	TypeC2SMatchListRequest:        9,
	TypeS2CMatchList:               1008,
}

// Valid reports whether t is a known message type.
func (t Type) Valid() bool {
	_, ok := legalLength[t]
	return ok
}

// LegalLength returns the required total payload length for t, and
// whether t is a known type at all.
func (t Type) LegalLength() (int, bool) {
	n, ok := legalLength[t]
	return n, ok
}

// String implements fmt.Stringer for log output.
func (t Type) String() string {
	switch t {
	case TypeC2SGreet:
		return "C2SGreet"
	case TypeS2CGreet:
		return "S2CGreet"
	case TypeC2SMatchCreateOrJoin:
		return "C2SMatchCreateOrJoin"
	case TypeS2CMatchCreateOrJoinResult:
		return "S2CMatchCreateOrJoinResult"
	case TypeC2SMatchCancel:
		return "C2SMatchCancel"
	case TypeS2CMatchCancelResult:
		return "S2CMatchCancelResult"
	case TypeS2CMatchStart:
		return "S2CMatchStart"
	case TypeS2COpponentLeft:
		return "S2COpponentLeft"
	case TypeC2SForfeit:
		return "C2SForfeit"
	case TypeAction:
		return "C2S/S2CAction"
	case TypeC2SMatchListRequest:
		return "C2SMatchListRequest"
	case TypeS2CMatchList:
		return "S2CMatchList"
	default:
		return fmt.Sprintf("Type(%d)", int64(t))
	}
}

// MaxListEntries bounds both arrays carried in S2CMatchList and the
// HistoryLog eviction policy.
const MaxListEntries = 13
