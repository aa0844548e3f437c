package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daviddao/edgebill/pkg/metrics"
	"github.com/daviddao/edgebill/pkg/syncer"
)

func (a *app) cmdSync(args []string) int {
	flags := flag.NewFlagSet("sync", flag.ContinueOnError)
	endpoint := flags.String("endpoint", "", "cloud ledger URL (default from config)")
	batch := flags.Int("batch", 0, "events per batch (default from config)")
	watch := flags.Bool("watch", false, "keep shipping on the configured interval")
	jsonOut := flags.Bool("json", false, "JSON output (one-shot only)")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	url := *endpoint
	if url == "" {
		url = a.cfg.Sync.Endpoint
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "eb: sync: no endpoint (set sync.endpoint, EDGEBILL_SYNC_URL, or --endpoint)")
		return 1
	}
	size := *batch
	if size <= 0 {
		size = a.cfg.Sync.BatchSize
	}

	sy := syncer.New(a.log, url, a.replicaID(), size)
	sy.Logf = func(format string, args ...interface{}) {
		fmt.Fprintf(os.Stderr, "eb: "+format+"\n", args...)
	}
	sy.Warnf = warnf

	if *watch {
		if port := a.cfg.Sync.MetricsPort; port > 0 {
			metrics.StartExporter(port, warnf)
			fmt.Fprintf(os.Stderr, "eb: metrics on :%d/metrics\n", port)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(os.Stderr, "eb: syncing to %s every %s\n", url, a.cfg.Sync.Interval)
		sy.Run(ctx, time.Duration(a.cfg.Sync.Interval))
		return 0
	}

	shipped, acked, err := sy.RunOnce(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "eb: sync: %v\n", err)
		return 1
	}
	if *jsonOut {
		printJSON(map[string]interface{}{
			"shipped":       shipped,
			"acked_through": acked,
			"pending":       a.log.Pending(),
		})
	} else if shipped == 0 {
		fmt.Println("nothing to sync")
	} else {
		fmt.Printf("shipped %d event(s), acked through %d, %d pending\n",
			shipped, acked, a.log.Pending())
	}
	return 0
}
