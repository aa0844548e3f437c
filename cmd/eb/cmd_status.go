package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/daviddao/edgebill/pkg/crdt"
)

func (a *app) cmdStatus(args []string) int {
	flags := flag.NewFlagSet("status", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	pending := a.log.Pending()
	maxSeqno := a.log.MaxSeqno()
	imsis, err := a.log.ModifiedSubscribers()
	if err != nil {
		warnf("status: modified subscribers: %v", err)
	}
	subs, err := a.store.ListSubscribers()
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: status: %v\n", err)
		return 1
	}
	leases, err := a.store.ListLeases()
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: status: %v\n", err)
		return 1
	}
	now, err := a.store.Now()
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: status: clock: %v\n", err)
		return 1
	}

	type balanceLine struct {
		IMSI  string `json:"imsi"`
		Value int64  `json:"value"`
	}
	var balances []balanceLine
	for _, sub := range subs {
		c, err := crdt.Deserialize(sub.Balance, a.replicaID())
		if err != nil {
			warnf("status: balance for %s: %v", sub.IMSI, err)
			continue
		}
		balances = append(balances, balanceLine{IMSI: sub.IMSI, Value: c.Value()})
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"db_path":              a.cfg.DBPath,
			"replica_id":           a.replicaID(),
			"now":                  now,
			"pending_events":       pending,
			"max_seqno":            maxSeqno,
			"modified_subscribers": imsis,
			"dedup_retained":       a.window.Len(),
			"dedup_max_len":        a.window.MaxLen(),
			"dedup_policy":         a.window.Policy().String(),
			"balances":             balances,
			"leases":               leases,
		})
		return 0
	}

	fmt.Printf("site %s (db %s)\n", a.replicaID(), a.cfg.DBPath)
	fmt.Printf("  store clock: %s\n", now.Format(time.RFC3339))
	fmt.Printf("  events: %d pending, highest seqno %d\n", pending, maxSeqno)
	if len(imsis) > 0 {
		fmt.Printf("  unsynced subscribers: %v\n", imsis)
	}
	fmt.Printf("  dedup window: %d/%d retained (%s)\n",
		a.window.Len(), a.window.MaxLen(), a.window.Policy())
	for _, b := range balances {
		fmt.Printf("  balance %s: %d\n", b.IMSI, b.Value)
	}
	for _, l := range leases {
		if l.Held(now) {
			fmt.Printf("  lease %s: held by %s until %s\n",
				l.Key, l.Owner, l.ExpiresAt.Format(time.RFC3339))
		} else {
			fmt.Printf("  lease %s: free\n", l.Key)
		}
	}
	return 0
}
