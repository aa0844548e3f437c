package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
)

func (a *app) cmdAck(args []string) int {
	flags := flag.NewFlagSet("ack", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb ack <seqno> [--json]")
		return 1
	}

	seqno, err := strconv.ParseInt(flags.Arg(0), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: ack: bad seqno %q\n", flags.Arg(0))
		return 1
	}

	if err := a.log.Ack(seqno); err != nil {
		fmt.Fprintf(os.Stderr, "eb: ack: %v\n", err)
		return 1
	}
	pending := a.log.Pending()

	if *jsonOut {
		printJSON(map[string]interface{}{"acked_through": seqno, "pending": pending})
	} else {
		fmt.Printf("acked through seqno %d, %d pending\n", seqno, pending)
	}
	return 0
}
