package discount

import "strings"

// EligibleItems returns the items matching a promotion's criteria: the item's
// category is in categories (case-insensitive) OR its product ID is in
// productIDs (exact). Both lists are combined inclusively. It fails with
// ErrNoEligibleItems when nothing matches.
func EligibleItems(categories, productIDs []string, items []Item) ([]Item, error) {
	cats := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		cats[strings.ToLower(c)] = struct{}{}
	}
	ids := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		ids[id] = struct{}{}
	}

	var out []Item
	for _, item := range items {
		_, byCategory := cats[strings.ToLower(item.Category)]
		_, byID := ids[item.ProductID]
		if byCategory || byID {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoEligibleItems
	}
	return out, nil
}
