package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Vinke1/collectorverse-tcg-sub002/internal/metrics"
)

// AuditReport summarizes catalog completeness at one point in time.
type AuditReport struct {
	GeneratedAt  time.Time           `json:"generated_at"`
	TotalCards   int64               `json:"total_cards"`
	TotalMissing int                 `json:"total_missing"`
	PerSeries    []MissingImageCount `json:"per_series"`
}

// AuditService scans the catalog for cards whose image field is still
// empty. The server runs it as a background worker; the audit-images
// CLI runs a single pass.
type AuditService struct {
	catalog  *CatalogService
	interval time.Duration

	mu   sync.RWMutex
	last *AuditReport
}

func NewAuditService(catalog *CatalogService, interval time.Duration) *AuditService {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &AuditService{
		catalog:  catalog,
		interval: interval,
	}
}

// Start begins the background audit loop.
func (s *AuditService) Start(ctx context.Context) {
	log.Printf("Audit worker started: scanning for missing images every %v", s.interval)

	// Run immediately on startup
	if _, err := s.RunOnce(ctx); err != nil {
		log.Printf("Audit worker: initial scan failed: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Audit worker stopping...")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("Audit worker: scan failed: %v", err)
			}
		}
	}
}

// RunOnce performs a single scan, updates the gauges and caches the
// report for the API.
func (s *AuditService) RunOnce(ctx context.Context) (*AuditReport, error) {
	counts, err := s.catalog.MissingImageCounts(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.catalog.CountCards(ctx)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{
		GeneratedAt: time.Now(),
		TotalCards:  total,
		PerSeries:   counts,
	}

	perTCG := make(map[string]int)
	for _, c := range counts {
		report.TotalMissing += c.Missing
		perTCG[c.TCGSlug] += c.Missing
	}

	metrics.CardDatabaseSize.Set(float64(total))
	s.mu.Lock()
	// a TCG that just reached completeness must drop back to zero
	if s.last != nil {
		for _, c := range s.last.PerSeries {
			if _, ok := perTCG[c.TCGSlug]; !ok {
				metrics.CardsMissingImage.WithLabelValues(c.TCGSlug).Set(0)
			}
		}
	}
	s.last = report
	s.mu.Unlock()
	for tcg, missing := range perTCG {
		metrics.CardsMissingImage.WithLabelValues(tcg).Set(float64(missing))
	}

	if report.TotalMissing > 0 {
		log.Printf("Audit worker: %d of %d cards missing images across %d series",
			report.TotalMissing, total, len(counts))
	}
	return report, nil
}

// LastReport returns the most recent report, or nil before the first
// scan completes.
func (s *AuditService) LastReport() *AuditReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
