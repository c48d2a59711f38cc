package counter

// Symbol identifies one of the card suits tallied per channel.
type Symbol string

const (
	Hearts   Symbol = "❤️"
	Diamonds Symbol = "♦️"
	Clubs    Symbol = "♣️"
	Spades   Symbol = "♠️"
)

// Symbols lists the tracked suits in report display order.
var Symbols = []Symbol{Clubs, Diamonds, Spades, Hearts}

// Totals maps each suit to its running count. Suits with no occurrences
// are present with a zero value.
type Totals map[Symbol]int

func zeroTotals() Totals {
	t := make(Totals, len(Symbols))
	for _, s := range Symbols {
		t[s] = 0
	}
	return t
}

// Sum returns the total number of counted cards.
func (t Totals) Sum() int {
	n := 0
	for _, v := range t {
		n += v
	}
	return n
}

func (t Totals) clone() Totals {
	cp := make(Totals, len(t))
	for k, v := range t {
		cp[k] = v
	}
	return cp
}
