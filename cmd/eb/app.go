package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/daviddao/edgebill/pkg/config"
	"github.com/daviddao/edgebill/pkg/crdt"
	"github.com/daviddao/edgebill/pkg/dedup"
	"github.com/daviddao/edgebill/pkg/eventlog"
	"github.com/daviddao/edgebill/pkg/lease"
	"github.com/daviddao/edgebill/pkg/metrics"
	"github.com/daviddao/edgebill/pkg/store"
)

// app holds shared state for all CLI subcommands.
type app struct {
	cfg    *config.Config
	store  *store.Store
	log    *eventlog.Log
	window *dedup.Window
	lock   *lease.Lock
}

// newApp loads the config, opens the site database, and wires the four
// core components over it.
func newApp() (*app, error) {
	cfg, err := config.Load(envOr("EDGEBILL_CONFIG", "edgebill.yaml"))
	if err != nil {
		return nil, err
	}
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("cannot open database %q: %w", cfg.DBPath, err)
	}
	policy, err := dedup.ParsePolicy(cfg.Dedup.Policy)
	if err != nil {
		s.Close()
		return nil, err
	}
	window := dedup.NewWindow(s, cfg.Dedup.MaxLen, policy)
	window.Warnf = func(format string, args ...any) {
		metrics.DedupFailures.Inc()
		warnf(format, args...)
	}
	lock := lease.New(s)
	lock.Warnf = warnf
	return &app{
		cfg:    cfg,
		store:  s,
		log:    eventlog.New(s),
		window: window,
		lock:   lock,
	}, nil
}

// Close releases the database connection.
func (a *app) Close() { a.store.Close() }

// replicaID resolves the CRDT replica identity for this site: config (or
// EDGEBILL_REPLICA), falling back to the hostname. It must stay stable —
// a replica that changes ids strands its old accumulator slots.
func (a *app) replicaID() string {
	if a.cfg.ReplicaID != "" {
		return a.cfg.ReplicaID
	}
	host, err := os.Hostname()
	if err != nil {
		return "edge-site"
	}
	return host
}

// resolveOwner returns the lease owner identity: the flag if set, then
// EDGEBILL_OWNER, then the hostname.
func (a *app) resolveOwner(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if v := os.Getenv("EDGEBILL_OWNER"); v != "" {
		return v
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown-owner"
	}
	return host
}

// loadBalance returns the subscriber's balance counter, empty if the
// subscriber is new, mutating under this site's replica id.
func (a *app) loadBalance(imsi string) (*crdt.PNCounter, error) {
	sub, err := a.store.GetSubscriber(imsi)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return crdt.New(a.replicaID()), nil
	}
	return crdt.Deserialize(sub.Balance, a.replicaID())
}

// saveBalance persists the counter state back to the subscriber record.
func (a *app) saveBalance(imsi string, c *crdt.PNCounter) error {
	blob, err := c.Serialize()
	if err != nil {
		return err
	}
	return a.store.PutSubscriberBalance(imsi, blob)
}

// warnf logs a degradation warning without stopping the command.
func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "eb: warning: "+format+"\n", args...)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
