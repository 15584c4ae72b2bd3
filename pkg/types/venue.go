package types

// Venue identifies one of the two connected exchanges.
type Venue string

const (
	// VenuePredict is the BSC-settled venue (JWT auth, smart-wallet orders).
	VenuePredict Venue = "predict"
	// VenuePolymarket is the Polygon-settled venue (HMAC auth, CLOB API).
	VenuePolymarket Venue = "polymarket"
)

// Outcome is a binary market outcome.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
	// OutcomeUnknown marks orders whose outcome could not be derived from the
	// token id. Never assume YES here.
	OutcomeUnknown Outcome = ""
)

// Opposite returns the complementary outcome. Unknown stays unknown.
func (o Outcome) Opposite() Outcome {
	switch o {
	case OutcomeYes:
		return OutcomeNo
	case OutcomeNo:
		return OutcomeYes
	default:
		return OutcomeUnknown
	}
}

// Side is an order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the opposing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}
