package mocks

// Upstream hosts the providers call. The mock transport rewrites every
// request to the mock server and passes the original host in UpstreamHeader.
const (
	YahooHost        = "query1.finance.yahoo.com"
	AlphaVantageHost = "www.alphavantage.co"
	FinnhubHost      = "finnhub.io"
	FREDHost         = "api.stlouisfed.org"
	SECHost          = "www.sec.gov"
)

// UpstreamHeader carries the host a request was originally addressed to
const UpstreamHeader = "X-Upstream-Host"

// Quote is a canned quote served by the Yahoo, Alpha Vantage and Finnhub mocks
type Quote struct {
	Symbol string
	Price  float64
	Pct    float64
	High   float64
	Low    float64
	Volume int64
}

// PreviousClose backs the previous close out of Price and Pct, for Finnhub
func (q Quote) PreviousClose() float64 {
	if q.Pct == -100 {
		return 0
	}
	return q.Price / (1 + q.Pct/100)
}

// yahooQuote is one entry of the v7 quote result
type yahooQuote struct {
	Symbol                     string  `json:"symbol"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
	RegularMarketDayHigh       float64 `json:"regularMarketDayHigh,omitempty"`
	RegularMarketDayLow        float64 `json:"regularMarketDayLow,omitempty"`
	RegularMarketVolume        int64   `json:"regularMarketVolume,omitempty"`
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []yahooQuote `json:"result"`
		Error  any          `json:"error"`
	} `json:"quoteResponse"`
}

type yahooChartQuote struct {
	Close []*float64 `json:"close"`
}

type yahooChartResult struct {
	Indicators struct {
		Quote []yahooChartQuote `json:"quote"`
	} `json:"indicators"`
}

type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
	} `json:"chart"`
}

// alphaGlobalQuote is the GLOBAL_QUOTE payload
type alphaGlobalQuote struct {
	GlobalQuote map[string]string `json:"Global Quote"`
}

// alphaIntraday is the TIME_SERIES_INTRADAY payload
type alphaIntraday struct {
	TimeSeries map[string]map[string]string `json:"Time Series (5min)"`
}

// finnhubQuote is the /quote payload. Finnhub answers unknown symbols with zeros.
type finnhubQuote struct {
	C  float64 `json:"c"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	O  float64 `json:"o"`
	PC float64 `json:"pc"`
}

// Observation is one FRED series observation. Value "." marks a missing day.
type Observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type fredObservations struct {
	Observations []Observation `json:"observations"`
}

// Filing is one entry of the EDGAR current-filings feed
type Filing struct {
	Title   string
	Updated string
	Link    string
}
