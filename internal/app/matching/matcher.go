// Package matching decides when two cart line items are the same line.
//
// Two notions coexist on purpose. Adding to a cart uses SubsetMatch, so a request that names
// fewer options than an existing line still lands on that line. Merging a guest cart uses
// ExactMatch, which compares option sets without regard to order.
package matching

import "github.com/ikkim/cart-sync/internal/app/snapshot"

// Pair is one attribute/value selection.
type Pair struct {
	Attribute string
	Value     string
}

// Candidate is the line item being added or merged.
type Candidate struct {
	ProdID  string
	Options []Pair
}

// CandidateFromItem describes an existing snapshot item as a candidate.
func CandidateFromItem(item *snapshot.Item) Candidate {
	return Candidate{ProdID: item.ProdID, Options: optionPairs(item.ItemOptions)}
}

// SubsetMatch returns the first item with the same product whose options cover every
// candidate option, or nil.
func SubsetMatch(items []snapshot.Item, c Candidate) *snapshot.Item {
	for i := range items {
		if items[i].ProdID != c.ProdID {
			continue
		}
		if covers(pairSet(optionPairs(items[i].ItemOptions)), c.Options) {
			return &items[i]
		}
	}
	return nil
}

// ExactMatch returns the first item with the same product and the same option set, or nil.
func ExactMatch(items []snapshot.Item, c Candidate) *snapshot.Item {
	want := pairSet(c.Options)
	for i := range items {
		if items[i].ProdID != c.ProdID {
			continue
		}
		have := pairSet(optionPairs(items[i].ItemOptions))
		if len(have) == len(want) && covers(have, c.Options) {
			return &items[i]
		}
	}
	return nil
}

func covers(set map[Pair]struct{}, pairs []Pair) bool {
	for _, p := range pairs {
		if _, ok := set[p]; !ok {
			return false
		}
	}
	return true
}

func pairSet(pairs []Pair) map[Pair]struct{} {
	set := make(map[Pair]struct{}, len(pairs))
	for _, p := range pairs {
		set[p] = struct{}{}
	}
	return set
}

func optionPairs(opts []snapshot.Option) []Pair {
	pairs := make([]Pair, 0, len(opts))
	for _, o := range opts {
		pairs = append(pairs, Pair{Attribute: o.Attribute, Value: o.Value})
	}
	return pairs
}
