package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/daviddao/edgebill/pkg/metrics"
)

func (a *app) cmdAppend(args []string) int {
	flags := flag.NewFlagSet("append", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb append '<json payload>' [--json]")
		return 1
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(flags.Arg(0)), &payload); err != nil {
		fmt.Fprintf(os.Stderr, "eb: append: payload is not a JSON object: %v\n", err)
		return 1
	}

	seqno, err := a.log.Append(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: append: %v\n", err)
		return 1
	}
	metrics.EventsAppended.Inc()

	if *jsonOut {
		printJSON(map[string]interface{}{"seqno": seqno})
	} else {
		fmt.Printf("appended seqno %d\n", seqno)
	}
	return 0
}
