package domain

import (
	"fmt"
	"strings"

	"time"

	"github.com/shopspring/decimal"
)

// Operation id prefixes. Linked payouts get their own prefix so operators can
// tell them apart from free-standing payouts at a glance.
const (
	PrefixRemittance   = "REM"
	PrefixPayout       = "PAG"
	PrefixLinkedPayout = "PAGR"
)

// BuildOperationID produces the human-readable operation id, e.g.
// REM-08/29-T100-153045 for a 100.xx transfer remittance created at 15:30:45.
// The kind letter is T for transfer and E for cash ("efectivo"), followed by
// the first three digits of the amount.
func BuildOperationID(prefix, kind string, amount decimal.Decimal, at time.Time) string {
	letter := "T"
	if kind == KindCash {
		letter = "E"
	}
	return fmt.Sprintf("%s-%s-%s%s-%s",
		prefix,
		at.Format("01/02"),
		letter,
		amountDigits(amount),
		at.Format("150405"),
	)
}

// DisplayID renders an operation id for outbound messages, inserting a '#'
// before the last six characters (the HHMMSS suffix).
func DisplayID(id string) string {
	if len(id) <= 6 {
		return "#" + id
	}
	return id[:len(id)-6] + "#" + id[len(id)-6:]
}

func amountDigits(amount decimal.Decimal) string {
	s := amount.Abs().String()
	s = strings.ReplaceAll(s, ".", "")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	if len(s) > 3 {
		s = s[:3]
	}
	return s
}
