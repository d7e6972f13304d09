package table

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Kind int

const (
	KindMissing Kind = iota
	KindText
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "numeric"
	default:
		return "missing"
	}
}

// Cell is a single value: missing, text or decimal number.
type Cell struct {
	kind Kind
	text string
	num  decimal.Decimal
}

// naTokens are the field values read as missing.
var naTokens = func() map[string]bool {
	tokens := []string{
		"", "NA", "N/A", "n/a", "NaN", "nan", "-NaN", "-nan", "#N/A", "#NA",
		"#N/A N/A", "NULL", "null", "None", "<NA>", "1.#IND", "1.#QNAN",
	}
	m := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		m[tok] = true
	}
	return m
}()

func Missing() Cell {
	return Cell{}
}

func Text(s string) Cell {
	return Cell{kind: KindText, text: s}
}

func Number(d decimal.Decimal) Cell {
	return Cell{kind: KindNumber, num: d}
}

// Parse infers the cell kind of a raw delimited-text field.
func Parse(raw string) Cell {
	s := strings.TrimSpace(raw)
	if naTokens[s] {
		return Missing()
	}
	if d, err := decimal.NewFromString(s); err == nil && looksNumeric(s) {
		return Number(d)
	}
	return Text(raw)
}

// looksNumeric rejects forms decimal accepts but a CSV reader should keep as text,
// like exponent-only codes ("1E5" org codes) or leading zero identifiers.
func looksNumeric(s string) bool {
	if strings.ContainsAny(s, "eE") {
		return false
	}
	digits := strings.TrimLeft(s, "+-")
	if len(digits) > 1 && digits[0] == '0' && digits[1] != '.' {
		return false
	}
	return true
}

func (c Cell) Kind() Kind {
	return c.kind
}

func (c Cell) IsMissing() bool {
	return c.kind == KindMissing
}

func (c Cell) Decimal() (decimal.Decimal, bool) {
	return c.num, c.kind == KindNumber
}

func (c Cell) String() string {
	switch c.kind {
	case KindText:
		return c.text
	case KindNumber:
		return c.num.String()
	default:
		return ""
	}
}

func (c Cell) Equal(o Cell) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case KindText:
		return c.text == o.text
	case KindNumber:
		return c.num.Equal(o.num)
	default:
		return true
	}
}

// key is a kind-qualified representation used for hashing rows.
func (c Cell) key() string {
	switch c.kind {
	case KindText:
		return "t:" + c.text
	case KindNumber:
		return "n:" + c.num.String()
	default:
		return "m:"
	}
}

// Value converts the cell for a database/sql driver.
func (c Cell) Value() any {
	switch c.kind {
	case KindText:
		return c.text
	case KindNumber:
		return c.num.String()
	default:
		return nil
	}
}
