package valueobject

import "errors"

var (
	ErrInvalidReservationStatus = errors.New("invalid reservation status")
	ErrInvalidTransactionType   = errors.New("invalid stock transaction type")
)
