package domain

// LineItem is one requested category of financial data
type LineItem string

const (
	LineItemBalances    LineItem = "balances"
	LineItemAssets      LineItem = "assets"
	LineItemLiabilities LineItem = "liabilities"
)

// ParseLineItem maps a raw item name onto a known line item kind.
func ParseLineItem(raw string) (LineItem, error) {
	switch LineItem(raw) {
	case LineItemBalances, LineItemAssets, LineItemLiabilities:
		return LineItem(raw), nil
	default:
		return "", &UnknownLineItemError{Item: raw}
	}
}

// DedupeItems removes duplicate item names while preserving first-seen order,
// so a request asking twice for the same line item is served exactly once.
func DedupeItems(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
