package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// BasketSize is the fixed number of symbols in every basket.
const BasketSize = 3

// Basket is an immutable set of exactly three distinct symbols owned by a
// user. Two baskets with the same owner and symbol set are the same basket;
// creation goes through BasketStore.FindOrCreate so no duplicates exist.
type Basket struct {
	ID        string
	UserID    string
	Symbols   [BasketSize]string
	CreatedAt time.Time
}

// NormalizeSymbols validates and canonicalizes a basket symbol set: exactly
// three distinct, non-empty codes, upper-cased and sorted. The sorted form is
// what FindOrCreate keys on.
func NormalizeSymbols(symbols []string) ([BasketSize]string, error) {
	var out [BasketSize]string
	if len(symbols) != BasketSize {
		return out, fmt.Errorf("basket requires exactly %d symbols, got %d", BasketSize, len(symbols))
	}

	cleaned := make([]string, 0, BasketSize)
	seen := make(map[string]bool, BasketSize)
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			return out, fmt.Errorf("basket symbol must not be empty")
		}
		if seen[s] {
			return out, fmt.Errorf("duplicate symbol %s in basket", s)
		}
		seen[s] = true
		cleaned = append(cleaned, s)
	}

	sort.Strings(cleaned)
	copy(out[:], cleaned)
	return out, nil
}

// SymbolKey returns the canonical comma-joined form of a normalized symbol
// set, used as the uniqueness key for basket reuse.
func SymbolKey(symbols [BasketSize]string) string {
	return strings.Join(symbols[:], ",")
}
