package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	wio "github.com/5dchess/5dcserver/pkg/io"
)

// MinFrame is the smallest legal value of MAX_FRAME (limit_message_length).
const MinFrame = 1008

// DefaultMaxFrame is MAX_FRAME's default.
const DefaultMaxFrame = 4096

// ReadFrame reads one length-prefixed frame from r: an 8-byte
// little-endian length, followed by that many bytes of payload whose
// first 8 bytes are the message Type. It enforces maxFrame and the
// per-type legal-length table, and returns the type along with the
// payload bytes immediately following the type word (the "body").
//
// A single call performs exactly the reads needed for one message; it
// never blocks beyond what the underlying Reader blocks for, matching
// the "codec never blocks beyond a single async read/write" contract.
func ReadFrame(r io.Reader, maxFrame int) (Type, []byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length := binary.LittleEndian.Uint64(lenBuf[:])
	if length > uint64(maxFrame) {
		return 0, nil, errors.Wrapf(ErrFrameTooLarge, "declared length %d exceeds MAX_FRAME %d", length, maxFrame)
	}
	if length < 8 {
		return 0, nil, errors.Wrapf(ErrInvalidData, "declared length %d too small to hold a message type", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	typ := Type(int64(binary.LittleEndian.Uint64(payload[0:8])))
	legal, ok := typ.LegalLength()
	if !ok {
		return 0, nil, errors.Wrapf(ErrInvalidData, "unknown message type %d", int64(typ))
	}
	if int(length) != legal {
		return 0, nil, errors.Wrapf(ErrInvalidData, "message of type %s should be %d bytes, got %d", typ, legal, length)
	}
	return typ, payload[8:], nil
}

// WriteFrame asserts that typ+body together equal the declared legal
// length for typ (the codec's self-check against drift between the
// length table and a message's field list), then writes the 8-byte
// length prefix, the type word, and body to w.
func WriteFrame(w io.Writer, typ Type, body []byte) error {
	total := 8 + len(body)
	legal, ok := typ.LegalLength()
	if !ok {
		return errors.Wrapf(ErrInvalidData, "unknown message type %d", int64(typ))
	}
	if total != legal {
		return errors.Wrapf(ErrInvalidData, "encoder produced %d bytes for %s, want %d", total, typ, legal)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(total))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(int64(typ)))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// ---- C2SGreet / S2CGreet ----

// DecodeC2SGreet parses a C2SGreet body (48 bytes: version1, version2,
// and 4 padding words that are ignored on receive).
func DecodeC2SGreet(body []byte) (Greet, error) {
	r := wio.NewBinReaderFromBuf(body)
	g := Greet{Version1: r.ReadI64LE(), Version2: r.ReadI64LE()}
	for i := 0; i < 4; i++ {
		r.ReadI64LE()
	}
	if r.Err != nil {
		return Greet{}, errors.Wrap(ErrInvalidData, r.Err.Error())
	}
	return g, nil
}

// EncodeS2CGreet produces the fixed S2CGreet body: version=1 followed
// by 5 zero padding words.
func EncodeS2CGreet() []byte {
	w := wio.NewBufBinWriter()
	w.WriteI64LE(1)
	for i := 0; i < 5; i++ {
		w.WriteI64LE(0)
	}
	return w.Bytes()
}

// ---- C2SMatchCreateOrJoin ----

// DecodeMatchCreateOrJoin parses the 40-byte body (type already
// stripped): color, clock, visibility, variant, passcode.
func DecodeMatchCreateOrJoin(body []byte) (MatchCreateOrJoin, error) {
	r := wio.NewBinReaderFromBuf(body)
	color := ColorOpt(r.ReadI64LE())
	clock := ClockOpt(r.ReadI64LE())
	visibility := Visibility(r.ReadI64LE())
	variant := Variant(r.ReadI64LE())
	passcode := r.ReadI64LE()
	if r.Err != nil {
		return MatchCreateOrJoin{}, errors.Wrap(ErrInvalidData, r.Err.Error())
	}
	m := MatchCreateOrJoin{Color: color, Clock: clock, Visibility: visibility, Variant: variant, Passcode: passcode}
	if m.IsJoin() {
		// a join: color/clock/visibility/variant are ignored by the
		// caller, but must still be well-formed wire data, not validated
		// against the enum domains (the client may send anything for a
		// field it doesn't intend to be read).
		return m, nil
	}
	if !color.Valid() {
		return MatchCreateOrJoin{}, errors.Wrapf(ErrInvalidData, "unknown ColorOpt value %d", int64(color))
	}
	if !clock.Valid() {
		return MatchCreateOrJoin{}, errors.Wrapf(ErrInvalidData, "unknown ClockOpt value %d", int64(clock))
	}
	if !visibility.Valid() {
		return MatchCreateOrJoin{}, errors.Wrapf(ErrInvalidData, "unknown Visibility value %d", int64(visibility))
	}
	return m, nil
}

// EncodeMatchCreateOrJoin produces the wire body for a
// C2SMatchCreateOrJoin message (used by tests and any client-side tooling).
func EncodeMatchCreateOrJoin(m MatchCreateOrJoin) []byte {
	w := wio.NewBufBinWriter()
	w.WriteI64LE(int64(m.Color))
	w.WriteI64LE(int64(m.Clock))
	w.WriteI64LE(int64(m.Visibility))
	w.WriteI64LE(int64(m.Variant))
	w.WriteI64LE(m.Passcode)
	return w.Bytes()
}

// ---- S2CMatchCreateOrJoinResult ----

// EncodeMatchCreateOrJoinResult produces the 56-byte body: ok_flag,
// fail_flag, color, clock, variant, visibility, passcode.
func EncodeMatchCreateOrJoinResult(res MatchCreateOrJoinResult) []byte {
	w := wio.NewBufBinWriter()
	if res.Ok {
		w.WriteI64LE(1)
		w.WriteI64LE(0)
		w.WriteI64LE(int64(res.Settings.Color))
		w.WriteI64LE(int64(res.Settings.Clock))
		w.WriteI64LE(int64(res.Settings.Variant))
		w.WriteI64LE(int64(res.Settings.Visibility))
		w.WriteI64LE(res.Settings.Passcode)
	} else {
		w.WriteI64LE(0)
		w.WriteI64LE(1)
		w.WriteI64LE(0)
		w.WriteI64LE(0)
		w.WriteI64LE(0)
		w.WriteI64LE(0)
		w.WriteI64LE(-1)
	}
	return w.Bytes()
}

// DecodeMatchCreateOrJoinResult parses the body (used by tests and any
// client-side tooling exercising the round-trip laws).
func DecodeMatchCreateOrJoinResult(body []byte) (MatchCreateOrJoinResult, error) {
	r := wio.NewBinReaderFromBuf(body)
	ok := r.ReadI64LE()
	_ = r.ReadI64LE() // fail_flag, redundant with ok
	color := ColorOpt(r.ReadI64LE())
	clock := ClockOpt(r.ReadI64LE())
	variant := Variant(r.ReadI64LE())
	visibility := Visibility(r.ReadI64LE())
	passcode := r.ReadI64LE()
	if r.Err != nil {
		return MatchCreateOrJoinResult{}, errors.Wrap(ErrInvalidData, r.Err.Error())
	}
	return MatchCreateOrJoinResult{
		Ok: ok == 1,
		Settings: MatchSettings{
			Color: color, Clock: clock, Variant: variant,
			Visibility: visibility, Passcode: passcode,
		},
	}, nil
}

// ---- C2SMatchCancel / S2CMatchCancelResult ----

// EncodeMatchCancelResult produces the 8-byte body (one word: flag).
func EncodeMatchCancelResult(ok bool) []byte {
	w := wio.NewBufBinWriter()
	if ok {
		w.WriteI64LE(1)
	} else {
		w.WriteI64LE(0)
	}
	return w.Bytes()
}

// DecodeMatchCancelResult parses the body.
func DecodeMatchCancelResult(body []byte) (MatchCancelResult, error) {
	r := wio.NewBinReaderFromBuf(body)
	flag := r.ReadI64LE()
	if r.Err != nil {
		return MatchCancelResult{}, errors.Wrap(ErrInvalidData, r.Err.Error())
	}
	return MatchCancelResult{Ok: flag == 1}, nil
}

// ---- S2CMatchStart ----

// EncodeMatchStart produces the 40-byte body.
func EncodeMatchStart(m MatchStart) []byte {
	w := wio.NewBufBinWriter()
	w.WriteI64LE(int64(m.Clock))
	w.WriteI64LE(int64(m.Variant))
	w.WriteI64LE(m.MatchID)
	w.WriteI64LE(int64(m.Color))
	w.WriteU64LE(m.MessageID)
	return w.Bytes()
}

// DecodeMatchStart parses the body.
func DecodeMatchStart(body []byte) (MatchStart, error) {
	r := wio.NewBinReaderFromBuf(body)
	m := MatchStart{
		Clock:     ClockOpt(r.ReadI64LE()),
		Variant:   Variant(r.ReadI64LE()),
		MatchID:   r.ReadI64LE(),
		Color:     Color(r.ReadI64LE()),
		MessageID: r.ReadU64LE(),
	}
	if r.Err != nil {
		return MatchStart{}, errors.Wrap(ErrInvalidData, r.Err.Error())
	}
	return m, nil
}

// ---- S2COpponentLeft / C2SForfeit / C2SMatchListRequest (9-byte, no fields) ----

// EncodeEmptyWithPad produces the single trailing zero byte shared by
// the 9-byte message bodies (C2SMatchCancel, S2COpponentLeft,
// C2SForfeit, C2SMatchListRequest).
func EncodeEmptyWithPad() []byte {
	return []byte{0}
}

// ---- C2S/S2CAction ----

// EncodeAction produces the 104-byte body.
func EncodeAction(a Action) []byte {
	w := wio.NewBufBinWriter()
	w.WriteI64LE(int64(a.ActionType))
	w.WriteI64LE(int64(a.Color))
	w.WriteU64LE(a.MessageID)
	w.WriteI64LE(a.SrcL)
	w.WriteI64LE(a.SrcT)
	w.WriteI64LE(int64(a.SrcBoardColor))
	w.WriteI64LE(a.SrcY)
	w.WriteI64LE(a.SrcX)
	w.WriteI64LE(a.DstL)
	w.WriteI64LE(a.DstT)
	w.WriteI64LE(int64(a.DstBoardColor))
	w.WriteI64LE(a.DstY)
	w.WriteI64LE(a.DstX)
	return w.Bytes()
}

// DecodeAction parses the body, in (y, x) field order per spec.md §9.
func DecodeAction(body []byte) (Action, error) {
	r := wio.NewBinReaderFromBuf(body)
	a := Action{
		ActionType:    ActionType(r.ReadI64LE()),
		Color:         Color(r.ReadI64LE()),
		MessageID:     r.ReadU64LE(),
		SrcL:          r.ReadI64LE(),
		SrcT:          r.ReadI64LE(),
		SrcBoardColor: Color(r.ReadI64LE()),
		SrcY:          r.ReadI64LE(),
		SrcX:          r.ReadI64LE(),
		DstL:          r.ReadI64LE(),
		DstT:          r.ReadI64LE(),
		DstBoardColor: Color(r.ReadI64LE()),
		DstY:          r.ReadI64LE(),
		DstX:          r.ReadI64LE(),
	}
	if r.Err != nil {
		return Action{}, errors.Wrap(ErrInvalidData, r.Err.Error())
	}
	if !a.ActionType.Valid() {
		return Action{}, errors.Wrapf(ErrInvalidData, "unknown ActionType value %d", int64(a.ActionType))
	}
	if !a.Color.Valid() || !a.SrcBoardColor.Valid() || !a.DstBoardColor.Valid() {
		return Action{}, errors.Wrap(ErrInvalidData, "unknown Color value in action")
	}
	return a, nil
}

// ---- S2CMatchList ----

// EncodeMatchList produces the fixed 1000-byte body.
func EncodeMatchList(m MatchList) []byte {
	w := wio.NewBufBinWriter()
	w.WriteI64LE(1) // flag, always 1
	if m.IsHost {
		w.WriteI64LE(int64(m.HostColor))
		w.WriteI64LE(int64(m.HostClock))
		w.WriteI64LE(int64(m.HostVariant))
		w.WriteI64LE(m.HostPasscode)
		w.WriteI64LE(1)
	} else {
		w.WriteI64LE(0)
		w.WriteI64LE(0)
		w.WriteI64LE(0)
		w.WriteI64LE(0)
		w.WriteI64LE(0)
	}
	for i := 0; i < MaxListEntries; i++ {
		if i < len(m.Public) {
			e := m.Public[i]
			w.WriteI64LE(int64(e.Color))
			w.WriteI64LE(int64(e.Clock))
			w.WriteI64LE(int64(e.Variant))
			w.WriteI64LE(e.Passcode)
		} else {
			w.WriteI64LE(0)
			w.WriteI64LE(0)
			w.WriteI64LE(0)
			w.WriteI64LE(0)
		}
	}
	w.WriteU64LE(uint64(len(m.Public)))
	for i := 0; i < MaxListEntries; i++ {
		if i < len(m.History) {
			e := m.History[i]
			w.WriteI64LE(int64(e.Status))
			w.WriteI64LE(int64(e.Clock))
			w.WriteI64LE(int64(e.Variant))
			w.WriteI64LE(int64(e.Visibility))
			w.WriteI64LE(e.SecondsPassed)
		} else {
			w.WriteI64LE(0)
			w.WriteI64LE(0)
			w.WriteI64LE(0)
			w.WriteI64LE(0)
			w.WriteI64LE(0)
		}
	}
	w.WriteU64LE(uint64(len(m.History)))
	return w.Bytes()
}

// DecodeMatchList parses the body (used by round-trip tests).
func DecodeMatchList(body []byte) (MatchList, error) {
	r := wio.NewBinReaderFromBuf(body)
	_ = r.ReadI64LE() // flag
	hostColor := ColorOpt(r.ReadI64LE())
	hostClock := ClockOpt(r.ReadI64LE())
	hostVariant := Variant(r.ReadI64LE())
	hostPasscode := r.ReadI64LE()
	isHost := r.ReadI64LE()
	m := MatchList{
		IsHost:       isHost == 1,
		HostColor:    hostColor,
		HostClock:    hostClock,
		HostVariant:  hostVariant,
		HostPasscode: hostPasscode,
	}
	var public [MaxListEntries]PublicListingEntry
	for i := 0; i < MaxListEntries; i++ {
		public[i] = PublicListingEntry{
			Color:    ColorOpt(r.ReadI64LE()),
			Clock:    ClockOpt(r.ReadI64LE()),
			Variant:  Variant(r.ReadI64LE()),
			Passcode: r.ReadI64LE(),
		}
	}
	publicCount := r.ReadU64LE()
	var history [MaxListEntries]HistoryEntry
	for i := 0; i < MaxListEntries; i++ {
		history[i] = HistoryEntry{
			Status:        HistoryStatus(r.ReadI64LE()),
			Clock:         ClockOpt(r.ReadI64LE()),
			Variant:       Variant(r.ReadI64LE()),
			Visibility:    Visibility(r.ReadI64LE()),
			SecondsPassed: r.ReadI64LE(),
		}
	}
	historyCount := r.ReadU64LE()
	if r.Err != nil {
		return MatchList{}, errors.Wrap(ErrInvalidData, r.Err.Error())
	}
	if publicCount > MaxListEntries || historyCount > MaxListEntries {
		return MatchList{}, errors.Wrap(ErrInvalidData, "listing count exceeds MaxListEntries")
	}
	m.Public = append([]PublicListingEntry(nil), public[:publicCount]...)
	m.History = append([]HistoryEntry(nil), history[:historyCount]...)
	return m, nil
}
