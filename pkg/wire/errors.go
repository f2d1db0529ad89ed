package wire

import "github.com/pkg/errors"

// ErrInvalidData is the sentinel wrapped by every codec-level rejection:
// an oversized frame, an unknown message type, a length mismatch for a
// known type, or an out-of-domain enum value. Per spec.md §7 these all
// close the connection.
var ErrInvalidData = errors.New("invalid data")

// ErrFrameTooLarge means the declared frame length exceeded MaxFrame.
var ErrFrameTooLarge = errors.Wrap(ErrInvalidData, "frame too large")
