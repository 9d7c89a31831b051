package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// IndexProxy maps an index ticker to the ETF that stands in for it
type IndexProxy struct {
	Symbol string `yaml:"symbol"`
	Proxy  string `yaml:"proxy"`
}

// VIXSource names where the volatility index is read from. Provider is the
// single quote provider asked first; FREDSeries is the fallback.
type VIXSource struct {
	Provider   string `yaml:"provider"`
	Symbol     string `yaml:"symbol"`
	FREDSeries string `yaml:"fred_series"`
}

// Sector is one tracked sector ETF
type Sector struct {
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
}

// Universe is the fixed set of instruments the summary covers.
// It is read once at startup and never changes while the process runs.
type Universe struct {
	IndexProvider string       `yaml:"index_provider"`
	Indices       []IndexProxy `yaml:"indices"`
	VIX           VIXSource    `yaml:"vix"`
	Sectors       []Sector     `yaml:"sectors"`
}

// DefaultUniverse returns the built-in universe: the three major US indices,
// the VIX, and the eleven SPDR sector funds
func DefaultUniverse() *Universe {
	return &Universe{
		IndexProvider: "YahooFinance",
		Indices: []IndexProxy{
			{Symbol: "^GSPC", Proxy: "SPY"},
			{Symbol: "^IXIC", Proxy: "QQQ"},
			{Symbol: "^DJI", Proxy: "DIA"},
		},
		VIX: VIXSource{
			Provider:   "YahooFinance",
			Symbol:     "^VIX",
			FREDSeries: "VIXCLS",
		},
		Sectors: []Sector{
			{Symbol: "XLY", Name: "Consumer Disc"},
			{Symbol: "XLP", Name: "Consumer Staples"},
			{Symbol: "XLE", Name: "Energy"},
			{Symbol: "XLF", Name: "Financials"},
			{Symbol: "XLV", Name: "Healthcare"},
			{Symbol: "XLI", Name: "Industrials"},
			{Symbol: "XLB", Name: "Materials"},
			{Symbol: "XLK", Name: "Info Tech"},
			{Symbol: "XLU", Name: "Utilities"},
			{Symbol: "XLRE", Name: "Real Estate"},
			{Symbol: "XLC", Name: "Communication"},
		},
	}
}

// LoadUniverse reads a universe YAML file. Sections left out of the file
// keep their built-in values.
func LoadUniverse(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file: %w", err)
	}
	return ParseUniverse(data)
}

// ParseUniverse decodes universe YAML on top of the default universe
func ParseUniverse(data []byte) (*Universe, error) {
	var file Universe
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode universe: %w", err)
	}

	u := DefaultUniverse()
	if file.IndexProvider != "" {
		u.IndexProvider = file.IndexProvider
	}
	if len(file.Indices) > 0 {
		u.Indices = file.Indices
	}
	if file.VIX.Provider != "" {
		u.VIX.Provider = file.VIX.Provider
	}
	if file.VIX.Symbol != "" {
		u.VIX.Symbol = file.VIX.Symbol
	}
	if file.VIX.FREDSeries != "" {
		u.VIX.FREDSeries = file.VIX.FREDSeries
	}
	if len(file.Sectors) > 0 {
		u.Sectors = file.Sectors
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate checks that every instrument has a symbol and that no symbol repeats
func (u *Universe) Validate() error {
	if u.IndexProvider == "" {
		return fmt.Errorf("universe: index_provider is required")
	}
	if u.VIX.Provider == "" || u.VIX.Symbol == "" {
		return fmt.Errorf("universe: vix needs both provider and symbol")
	}

	seen := make(map[string]bool)
	for _, idx := range u.Indices {
		if idx.Symbol == "" || idx.Proxy == "" {
			return fmt.Errorf("universe: index entries need both symbol and proxy")
		}
		if seen[idx.Symbol] {
			return fmt.Errorf("universe: duplicate index %s", idx.Symbol)
		}
		seen[idx.Symbol] = true
	}

	seen = make(map[string]bool)
	for _, s := range u.Sectors {
		if s.Symbol == "" {
			return fmt.Errorf("universe: sector entries need a symbol")
		}
		if seen[s.Symbol] {
			return fmt.Errorf("universe: duplicate sector %s", s.Symbol)
		}
		seen[s.Symbol] = true
	}

	return nil
}

// ProxySymbols returns the proxy ETF tickers in index order
func (u *Universe) ProxySymbols() []string {
	out := make([]string, 0, len(u.Indices))
	for _, idx := range u.Indices {
		out = append(out, idx.Proxy)
	}
	return out
}

// SectorSymbols returns the sector tickers in configured order
func (u *Universe) SectorSymbols() []string {
	out := make([]string, 0, len(u.Sectors))
	for _, s := range u.Sectors {
		out = append(out, s.Symbol)
	}
	return out
}

// Universe returns the configured universe, falling back to the built-in one
func (c *Config) Universe() (*Universe, error) {
	if c.UniverseFile == "" {
		return DefaultUniverse(), nil
	}
	return LoadUniverse(c.UniverseFile)
}
