package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/edgebill/pkg/metrics"
)

// cmdIngest is the full inbound-event path: dedup check, append to the
// log, and — for monetary events — apply the charge or top-up to the
// subscriber's balance counter. Signaling daemons call this once per
// delivered message; redelivery of the same id is a silent no-op.
func (a *app) cmdIngest(args []string) int {
	flags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	id := flags.String("id", "", "inbound message identifier (required; dedup key)")
	kind := flags.String("type", "", "event type (sms, call, gprs, provision, ...)")
	imsi := flags.String("imsi", "", "subscriber IMSI (required for monetary events)")
	amount := flags.Int64("amount", 0, "amount in millicents (>= 0)")
	topup := flags.Bool("topup", false, "credit the balance instead of charging it")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *id == "" || *kind == "" {
		fmt.Fprintln(os.Stderr, "usage: eb ingest --id ID --type T [--imsi I --amount N [--topup]] [--json]")
		return 1
	}
	if *amount < 0 {
		fmt.Fprintln(os.Stderr, "eb: ingest: amount must not be negative")
		return 1
	}

	if a.window.Seen(*id) {
		metrics.DuplicatesSuppressed.Inc()
		if *jsonOut {
			printJSON(map[string]interface{}{"id": *id, "duplicate": true})
		} else {
			fmt.Printf("duplicate %s suppressed\n", *id)
		}
		return 0
	}

	payload := map[string]any{"id": *id, "type": *kind}
	if *imsi != "" {
		payload["imsi"] = *imsi
	}
	if *amount > 0 {
		payload["amount"] = *amount
	}
	seqno, err := a.log.Append(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: ingest: %v\n", err)
		return 1
	}
	metrics.EventsAppended.Inc()

	var balance int64
	if *imsi != "" && *amount > 0 {
		c, err := a.loadBalance(*imsi)
		if err != nil {
			// The event is logged; billing state catches up via CRDT merge
			// on the next successful write. Degrade, don't halt.
			warnf("ingest: balance for %s: %v", *imsi, err)
		} else {
			if *topup {
				c.Increment(uint64(*amount))
			} else {
				c.Decrement(uint64(*amount))
			}
			if err := a.saveBalance(*imsi, c); err != nil {
				warnf("ingest: save balance for %s: %v", *imsi, err)
			}
			balance = c.Value()
		}
	}

	if *jsonOut {
		out := map[string]interface{}{"id": *id, "duplicate": false, "seqno": seqno}
		if *imsi != "" {
			out["imsi"] = *imsi
			out["balance"] = balance
		}
		printJSON(out)
	} else {
		fmt.Printf("ingested %s as seqno %d\n", *id, seqno)
		if *imsi != "" && *amount > 0 {
			fmt.Printf("  %s balance now %d\n", *imsi, balance)
		}
	}
	return 0
}
