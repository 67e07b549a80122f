// Package lots implements the tax-lot matching engine: lot creation on
// buys and lot selection on sales under the IRS-recognized matching
// methods, producing disposition records and a balanced ledger posting.
package lots

import "fmt"

// Method selects which purchase lots satisfy a sale.
type Method int

const (
	// FIFO consumes the earliest-acquired lots first.
	FIFO Method = iota
	// LIFO consumes the most recently acquired lots first.
	LIFO
	// HIFO consumes the highest cost-per-share lots first.
	HIFO
	// LOFO consumes the lowest cost-per-share lots first.
	LOFO
	// MinTax realizes losses before gains and prefers long-term gains over
	// short-term when a gain must be realized, minimizing current-year tax.
	MinTax
	// Specific uses caller-supplied (lot id, quantity) pairs in the order given.
	Specific
)

func (m Method) String() string {
	switch m {
	case FIFO:
		return "FIFO"
	case LIFO:
		return "LIFO"
	case HIFO:
		return "HIFO"
	case LOFO:
		return "LOFO"
	case MinTax:
		return "MIN_TAX"
	case Specific:
		return "SPECIFIC"
	default:
		return "unknown"
	}
}

// ParseMethod parses a string into a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "FIFO":
		return FIFO, nil
	case "LIFO":
		return LIFO, nil
	case "HIFO":
		return HIFO, nil
	case "LOFO":
		return LOFO, nil
	case "MIN_TAX":
		return MinTax, nil
	case "SPECIFIC":
		return Specific, nil
	default:
		return 0, fmt.Errorf("unknown lot matching method: %q", s)
	}
}
