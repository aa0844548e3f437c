// Package syncer ships pending billing events to the cloud ledger and
// applies its acks.
//
// Delivery is at-least-once: a batch whose ack is lost will be shipped
// again, so the cloud ingestion endpoint is assumed idempotent per event.
// The contract this code relies on: the cloud dedupes on the identifier
// embedded in each event's payload (not on seqno, which is local to the
// site), and its response carries the highest seqno it has durably
// accepted — everything at or below is then ack-pruned locally.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/daviddao/edgebill/pkg/eventlog"
	"github.com/daviddao/edgebill/pkg/metrics"
	"github.com/daviddao/edgebill/pkg/model"
)

// Batch is the wire form of one shipment.
type Batch struct {
	Site   string        `json:"site"`
	Events []model.Event `json:"events"`
}

// Ack is the cloud's response: the highest seqno durably accepted, or 0
// when nothing was.
type Ack struct {
	Seqno int64 `json:"seqno"`
}

// Syncer periodically drains the event log to the cloud ledger.
type Syncer struct {
	log       *eventlog.Log
	endpoint  string
	site      string
	batchSize int
	client    *http.Client

	// Logf reports normal sync activity; Warnf reports degraded cycles.
	// Both default to the standard logger.
	Logf  func(format string, args ...any)
	Warnf func(format string, args ...any)
}

// New returns a Syncer shipping to endpoint on behalf of site.
func New(eventLog *eventlog.Log, endpoint, site string, batchSize int) *Syncer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Syncer{
		log:       eventLog,
		endpoint:  endpoint,
		site:      site,
		batchSize: batchSize,
		client:    &http.Client{Timeout: 30 * time.Second},
		Logf:      log.Printf,
		Warnf:     log.Printf,
	}
}

// RunOnce ships one batch and applies the ack. Returns the number of
// events shipped and the seqno acked through (0 if none). An empty log is
// a successful no-op.
func (s *Syncer) RunOnce(ctx context.Context) (int, int64, error) {
	events, err := s.log.List(s.batchSize)
	if err != nil {
		return 0, 0, err
	}
	if len(events) == 0 {
		metrics.PendingEvents.Set(0)
		return 0, 0, nil
	}

	started := time.Now()
	acked, err := s.ship(ctx, events)
	if err != nil {
		metrics.SyncFailures.Inc()
		return 0, 0, err
	}
	metrics.SyncBatches.Inc()
	metrics.SyncLatency.Observe(time.Since(started).Seconds())

	if acked > 0 {
		if err := s.log.Ack(acked); err != nil {
			// The cloud has the events; the next cycle re-ships and the
			// cloud's own dedup absorbs the repeat.
			return len(events), 0, err
		}
		var n float64
		for _, e := range events {
			if e.Seqno <= acked {
				n++
			}
		}
		metrics.EventsAcked.Add(n)
	}
	metrics.PendingEvents.Set(float64(s.log.Pending()))
	return len(events), acked, nil
}

func (s *Syncer) ship(ctx context.Context, events []model.Event) (int64, error) {
	body, err := json.Marshal(Batch{Site: s.site, Events: events})
	if err != nil {
		return 0, fmt.Errorf("encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ship batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return 0, fmt.Errorf("ship batch: cloud returned %s", resp.Status)
	}

	var ack Ack
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return 0, fmt.Errorf("decode ack: %w", err)
	}
	return ack.Seqno, nil
}

// Run ships batches every interval until ctx is done. Failed cycles are
// logged and skipped — the site keeps operating and retries next tick.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		shipped, acked, err := s.RunOnce(ctx)
		if err != nil {
			s.Warnf("sync: cycle failed: %v", err)
		} else if shipped > 0 {
			s.Logf("sync: shipped %d event(s), acked through %d, %d pending",
				shipped, acked, s.log.Pending())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
