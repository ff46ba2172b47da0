package room

import "errors"

// Rejections. None of them change room state.
var (
	ErrNotShipper     = errors.New("only the load's shipper can start bidding")
	ErrUnknownTrucker = errors.New("trucker has not joined this load")
	ErrEmptyLoadID    = errors.New("load id is required")
)
