// Package distribute splits an assignment's handins among teaching
// assistants, either as near-equal chunks or along section rosters,
// with an optional balancing pass.
package distribute

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Bag is one TA's share of the handins.
type Bag struct {
	Name  string
	Items []string
}

// Chunks splits items into n sequential, near-equal bags named
// "TA 0".."TA n-1". The first len(items)%n bags get the extra item.
func Chunks(items []string, n int) []Bag {
	if n < 1 {
		n = 1
	}
	size, rest := len(items)/n, len(items)%n
	bags := make([]Bag, 0, n)
	offset := 0
	for i := 0; i < n; i++ {
		take := size
		if i < rest {
			take++
		}
		bags = append(bags, Bag{
			Name:  fmt.Sprintf("TA %d", i),
			Items: items[offset : offset+take],
		})
		offset += take
	}
	return bags
}

// Balance evens out unequal bag sizes with a greedy pass: while the
// largest and smallest bag differ by more than one item, move one item
// from the largest to the smallest. Each move shrinks that difference
// by two, so the pass terminates.
func Balance(bags []Bag) []Bag {
	if len(bags) < 2 {
		return bags
	}
	// Bags built by Chunks alias one backing array; give every bag its
	// own storage so a move can never write into a sibling's region.
	for i := range bags {
		bags[i].Items = append([]string(nil), bags[i].Items...)
	}
	for {
		minIdx, maxIdx := 0, 0
		for i := range bags {
			if len(bags[i].Items) < len(bags[minIdx].Items) {
				minIdx = i
			}
			if len(bags[i].Items) > len(bags[maxIdx].Items) {
				maxIdx = i
			}
		}
		if len(bags[maxIdx].Items)-len(bags[minIdx].Items) <= 1 {
			return bags
		}
		last := len(bags[maxIdx].Items) - 1
		moved := bags[maxIdx].Items[last]
		bags[maxIdx].Items = bags[maxIdx].Items[:last]
		bags[minIdx].Items = append(bags[minIdx].Items, moved)
	}
}

// MarshalYAML renders a bag as a single-key mapping from the TA or
// section name to its handin list.
func (b Bag) MarshalYAML() (any, error) {
	return map[string][]string{b.Name: b.Items}, nil
}

// Encode serializes the distribution list.
func Encode(bags []Bag) ([]byte, error) {
	return yaml.Marshal(bags)
}
