package models

// Quote represents a normalized quote from any provider.
// Price 0 means unknown.
type Quote struct {
	Symbol string   `json:"symbol"`
	Price  float64  `json:"price"`
	Pct    float64  `json:"pct"`
	High   *float64 `json:"high,omitempty"`
	Low    *float64 `json:"low,omitempty"`
	Volume *int64   `json:"volume,omitempty"`
}

// IsZero reports whether the quote carries no price information
func (q Quote) IsZero() bool {
	return q.Price <= 0
}

// VIXSymbol is the ticker used for the CBOE volatility index
const VIXSymbol = "^VIX"

// VIXData holds the latest volatility index level and its daily change
type VIXData struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Pct    float64 `json:"pct"`
}

// NewVIXData returns an empty VIX reading
func NewVIXData() VIXData {
	return VIXData{Symbol: VIXSymbol}
}

// SectorData is the daily performance of one sector ETF proxy
type SectorData struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Pct    float64 `json:"pct"`
}

// BreadthData holds advance/decline statistics for one exchange.
// A nil field means the value is unavailable, which is not the same as zero.
type BreadthData struct {
	Advancers *int64 `json:"advancers"`
	Decliners *int64 `json:"decliners"`
	UpVol     *int64 `json:"upVol"`
	DownVol   *int64 `json:"downVol"`
}

// Breadth exchange keys
const (
	ExchangeNYSE   = "nyse"
	ExchangeNASDAQ = "nasdaq"
)

// NewBreadth returns breadth with every exchange present and every count unavailable
func NewBreadth() map[string]BreadthData {
	return map[string]BreadthData{
		ExchangeNYSE:   {},
		ExchangeNASDAQ: {},
	}
}

// Mover is an entry in one of the gainers/losers/most-active lists
type Mover struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Pct    float64 `json:"pct"`
	Vol    int64   `json:"vol"`
}

// Mover list keys
const (
	MoversGainers    = "gainers"
	MoversLosers     = "losers"
	MoversMostActive = "most_active"
)

// NewMovers returns the three mover lists, all empty
func NewMovers() map[string][]Mover {
	return map[string][]Mover{
		MoversGainers:    {},
		MoversLosers:     {},
		MoversMostActive: {},
	}
}

// MacroEvent is an upcoming economic release
type MacroEvent struct {
	Time  string `json:"time"`
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

// SECHeadline is a recent filing from the EDGAR current-filings feed
type SECHeadline struct {
	Time  string `json:"time"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// MiniQuote is a compact quote with an intraday sparkline, used by the watchlist
type MiniQuote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Pct       float64   `json:"pct"`
	Volume    *int64    `json:"volume,omitempty"`
	Sparkline []float64 `json:"sparkline"`
}
