package transfer

import "github.com/shopspring/decimal"

// canonicalDelta orients a signed balance change onto the stored
// (business_a < business_b) key. The stored sign convention is
// "positive means a owes b": when the originating side is already the
// lower id the delta applies as given, otherwise it flips.
func canonicalDelta(fromID, toID int64, delta decimal.Decimal) (businessA, businessB int64, oriented decimal.Decimal) {
	if fromID < toID {
		return fromID, toID, delta
	}
	return toID, fromID, delta.Neg()
}
