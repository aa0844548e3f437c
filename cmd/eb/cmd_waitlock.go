package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/daviddao/edgebill/pkg/metrics"
)

func (a *app) cmdWaitLock(args []string) int {
	flags := flag.NewFlagSet("wait-lock", flag.ContinueOnError)
	owner := flags.String("owner", "", "lease owner identity")
	ttl := flags.Duration("ttl", 0, "lease lifetime (default from config)")
	timeout := flags.Duration("timeout", 0, "give up after this long (0 = wait forever)")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb wait-lock <key> [--owner ID] [--ttl D] [--timeout D] [--json]")
		return 1
	}

	key := flags.Arg(0)
	who := a.resolveOwner(*owner)
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(a.cfg.Lease.TTL)
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	granted := a.lock.Wait(ctx, key, who, lifetime)
	if granted {
		metrics.LeaseAcquired.Inc()
	} else {
		metrics.LeaseDenied.Inc()
	}

	if *jsonOut {
		printJSON(map[string]interface{}{"key": key, "owner": who, "granted": granted})
	} else if granted {
		fmt.Printf("locked %s as %s for %s\n", key, who, lifetime)
	} else {
		fmt.Printf("gave up waiting for %s\n", key)
	}
	if !granted {
		return 2
	}
	return 0
}
