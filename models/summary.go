package models

// Summary categories. These double as keys in MarketSummary.Sources and LatencyMin.
const (
	CategoryIndices = "indices"
	CategoryVIX     = "vix"
	CategorySectors = "sectors"
	CategoryBreadth = "breadth"
	CategoryMovers  = "movers"
	CategoryMacro   = "macro"
	CategorySEC     = "sec"
)

// SummaryCategories lists the categories in the order they are reported
var SummaryCategories = []string{
	CategoryIndices,
	CategoryVIX,
	CategorySectors,
	CategoryBreadth,
	CategoryMovers,
	CategoryMacro,
	CategorySEC,
}

// Provenance values that are not provider names
const (
	SourceNone     = "none"
	SourceStatic   = "static"
	SourceMockData = "MockData"
)

// MarketSummary is the aggregated market snapshot returned to clients
type MarketSummary struct {
	AsOf           string                 `json:"as_of"`
	Sources        map[string]string      `json:"sources"`
	LatencyMin     map[string]int         `json:"latency_min"`
	Indices        []Quote                `json:"indices"`
	VIX            VIXData                `json:"vix"`
	Breadth        map[string]BreadthData `json:"breadth"`
	Sectors        []SectorData           `json:"sectors"`
	Movers         map[string][]Mover     `json:"movers"`
	Macro          []MacroEvent           `json:"macro"`
	SECHeadlines   []SECHeadline          `json:"sec_headlines"`
	SessionPosture SessionPosture         `json:"session_posture"`
	Notes          []string               `json:"notes"`
}

// HealthStatus reports the health of every data source
type HealthStatus struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Sources   map[string]bool `json:"sources"`
}
