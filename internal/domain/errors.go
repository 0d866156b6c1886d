package domain

import "errors"

// Engine errors. All are surfaced synchronously to the caller of the
// operation that raised them; none leaves the engine inoperable.
var (
	ErrDuplicateOrderID = errors.New("duplicate order id")
	ErrInvalidOrder     = errors.New("invalid order")
	ErrUnfillableFAK    = errors.New("fill-and-kill order has no crossable liquidity")
	ErrUnknownOrderID   = errors.New("unknown order id")
	ErrIllegalModify    = errors.New("illegal modify")
	ErrEngineStopped    = errors.New("engine is stopped")
)

// ErrorCode maps an engine error to the stable string code carried in API
// error payloads.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateOrderID):
		return "duplicate_order_id"
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, ErrUnfillableFAK):
		return "unfillable_fak"
	case errors.Is(err, ErrUnknownOrderID):
		return "unknown_order_id"
	case errors.Is(err, ErrIllegalModify):
		return "illegal_modify"
	case errors.Is(err, ErrEngineStopped):
		return "engine_stopped"
	default:
		return "internal"
	}
}
