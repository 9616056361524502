package types

import "fmt"

// ValidationErrorKind names the structural check a message failed.
type ValidationErrorKind int

const (
	InvalidMessageType ValidationErrorKind = iota + 1
	NegativeHeight
	NegativeRound
	NegativePOLRound
	MissingConsensusMessage
)

func (k ValidationErrorKind) String() string {
	switch k {
	case InvalidMessageType:
		return "invalid message type"
	case NegativeHeight:
		return "negative height"
	case NegativeRound:
		return "negative round"
	case NegativePOLRound:
		return "negative pol round"
	case MissingConsensusMessage:
		return "missing consensus message"
	default:
		return fmt.Sprintf("ValidationErrorKind(%d)", int(k))
	}
}

// ValidationError is returned by ValidateBasic. Two validation errors match
// under errors.Is when their kinds are equal, so callers can test against
// the sentinels below.
type ValidationError struct {
	Kind   ValidationErrorKind
	Detail string
}

var (
	ErrInvalidMessageType      = &ValidationError{Kind: InvalidMessageType}
	ErrNegativeHeight          = &ValidationError{Kind: NegativeHeight}
	ErrNegativeRound           = &ValidationError{Kind: NegativeRound}
	ErrNegativePOLRound        = &ValidationError{Kind: NegativePOLRound}
	ErrMissingConsensusMessage = &ValidationError{Kind: MissingConsensusMessage}
)

func newValidationError(kind ValidationErrorKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

// validateSlotFields runs the ordinal checks in their fixed order.
func validateSlotFields(height, round int64) error {
	if height < 0 {
		return newValidationError(NegativeHeight, "%d", height)
	}
	if round < 0 {
		return newValidationError(NegativeRound, "%d", round)
	}
	return nil
}
