package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/daviddao/edgebill/pkg/metrics"
)

func (a *app) cmdLock(args []string) int {
	flags := flag.NewFlagSet("lock", flag.ContinueOnError)
	owner := flags.String("owner", "", "lease owner identity")
	ttl := flags.Duration("ttl", 0, "lease lifetime (default from config)")
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb lock <key> [--owner ID] [--ttl D] [--json]")
		return 1
	}

	key := flags.Arg(0)
	who := a.resolveOwner(*owner)
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(a.cfg.Lease.TTL)
	}

	granted := a.lock.Lock(key, who, lifetime)
	if granted {
		metrics.LeaseAcquired.Inc()
	} else {
		metrics.LeaseDenied.Inc()
	}

	holder, _, err := a.lock.Holder(key)
	if err != nil {
		warnf("lock: read holder: %v", err)
	}

	if *jsonOut {
		out := map[string]interface{}{"key": key, "owner": who, "granted": granted}
		if holder != nil {
			out["holder"] = holder
		}
		printJSON(out)
	} else if granted {
		fmt.Printf("locked %s as %s for %s\n", key, who, lifetime)
	} else {
		if holder != nil {
			fmt.Printf("DENIED: %s holds %s until %s\n",
				holder.Owner, key, holder.ExpiresAt.Format(time.RFC3339))
		} else {
			fmt.Printf("DENIED: %s held elsewhere\n", key)
		}
	}
	if !granted {
		return 2
	}
	return 0
}
