package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

func (a *app) cmdPending(args []string) int {
	flags := flag.NewFlagSet("pending", flag.ContinueOnError)
	limit := flags.Int("limit", 100, "maximum events to list")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	events, err := a.log.List(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: pending: %v\n", err)
		return 1
	}
	imsis, err := a.log.ModifiedSubscribers()
	if err != nil {
		warnf("pending: modified subscribers: %v", err)
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"events":               events,
			"count":                len(events),
			"total_pending":        a.log.Pending(),
			"modified_subscribers": imsis,
		})
		return 0
	}

	if len(events) == 0 {
		fmt.Println("no pending events")
		return 0
	}
	for _, e := range events {
		body, _ := json.Marshal(e.Payload)
		fmt.Printf("%6d  %s  %s\n", e.Seqno, e.CreatedAt.Format("2006-01-02 15:04:05"), body)
	}
	fmt.Printf("%d shown, %d total pending\n", len(events), a.log.Pending())
	if len(imsis) > 0 {
		fmt.Printf("subscribers with unsynced activity: %v\n", imsis)
	}
	return 0
}
