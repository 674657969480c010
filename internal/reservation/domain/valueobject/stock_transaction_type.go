package valueobject

import "strings"

// StockTransactionType labels an entry in the append-only stock ledger
// (the teacher's StockTransaction, generalized to every way the pool of
// units for a SKU can move).
type StockTransactionType string

const (
	StockTransactionReserve StockTransactionType = "RESERVE"
	StockTransactionConfirm StockTransactionType = "CONFIRM"
	StockTransactionExpire  StockTransactionType = "EXPIRE"
	StockTransactionCancel  StockTransactionType = "CANCEL"
)

func (t StockTransactionType) String() string {
	return string(t)
}

func (t StockTransactionType) IsValid() bool {
	switch t {
	case StockTransactionReserve, StockTransactionConfirm, StockTransactionExpire, StockTransactionCancel:
		return true
	}
	return false
}

func ParseStockTransactionType(raw string) (StockTransactionType, error) {
	t := StockTransactionType(strings.ToUpper(raw))
	if !t.IsValid() {
		return "", ErrInvalidTransactionType
	}
	return t, nil
}
