package services

import (
	"bytes"
	"context"
	"encoding/xml"
	"time"

	"golang.org/x/net/html/charset"

	"market-pulse/config"
	"market-pulse/models"
	"market-pulse/observability"
)

// secHeadlineLimit is the number of feed entries kept
const secHeadlineLimit = 5

// SECService reads the EDGAR current-filings Atom feed
type SECService struct {
	*Client
	userAgent string
	feedURL   string
	now       func() time.Time
}

// NewSECService creates a new SECService instance. EDGAR rejects requests
// without a descriptive User-Agent.
func NewSECService(userAgent string, cfg config.ProviderConfig, opts ...ClientOption) *SECService {
	if userAgent == "" {
		userAgent = config.DefaultSECUserAgent
	}
	return &SECService{
		Client:    NewClient(ProviderSEC, cfg, opts...),
		userAgent: userAgent,
		feedURL:   "https://www.sec.gov/cgi-bin/browse-edgar?action=getcurrent&type=&company=&dateb=&owner=include&start=0&count=10&output=atom",
		now:       time.Now,
	}
}

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	Title   *string `xml:"http://www.w3.org/2005/Atom title"`
	Updated *string `xml:"http://www.w3.org/2005/Atom updated"`
	Link    *struct {
		Href string `xml:"href,attr"`
	} `xml:"http://www.w3.org/2005/Atom link"`
}

// FetchHeadlines returns the five most recent filings in feed order.
// Any failure yields an empty list and marks the provider unhealthy.
func (s *SECService) FetchHeadlines(ctx context.Context) ([]models.SECHeadline, error) {
	headers := map[string]string{
		"User-Agent": s.userAgent,
		"Accept":     "application/atom+xml",
	}

	body, err := s.getBody(ctx, "headlines", s.feedURL, headers)
	if err != nil {
		return []models.SECHeadline{}, nil
	}

	// EDGAR declares ISO-8859-1
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel

	var feed atomFeed
	if err := dec.Decode(&feed); err != nil {
		s.healthy.Store(false)
		s.metrics.RecordProviderError(s.name, "headlines", "decode")
		observability.WithProvider(s.name).Warn("failed to parse filings feed", "error", err)
		return []models.SECHeadline{}, nil
	}

	headlines := make([]models.SECHeadline, 0, secHeadlineLimit)
	entries := feed.Entries
	if len(entries) > secHeadlineLimit {
		entries = entries[:secHeadlineLimit]
	}
	for _, e := range entries {
		if e.Title == nil || e.Link == nil {
			continue
		}
		updated := s.now().Format(time.RFC3339)
		if e.Updated != nil {
			updated = *e.Updated
		}
		headlines = append(headlines, models.SECHeadline{
			Time:  updated,
			Title: *e.Title,
			URL:   e.Link.Href,
		})
	}
	return headlines, nil
}
