// Command eb is the edgebill CLI — billing state for edge telecom sites
// that stay correct despite flaky cloud connectivity, duplicated inbound
// messages, and racing cloud workers.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "--help", "-h", "help":
		printUsage()
		return
	case "--version", "-v", "version":
		fmt.Println("eb", version)
		return
	}

	a, err := newApp()
	if err != nil {
		fatal("%v", err)
	}
	defer a.Close()

	switch os.Args[1] {
	// Setup
	case "init":
		os.Exit(a.cmdInit(os.Args[2:]))

	// Event log
	case "ingest":
		os.Exit(a.cmdIngest(os.Args[2:]))
	case "append":
		os.Exit(a.cmdAppend(os.Args[2:]))
	case "ack":
		os.Exit(a.cmdAck(os.Args[2:]))
	case "pending":
		os.Exit(a.cmdPending(os.Args[2:]))
	case "reset-seqno":
		os.Exit(a.cmdResetSeqno(os.Args[2:]))
	case "drop-all":
		os.Exit(a.cmdDropAll(os.Args[2:]))

	// Dedup window
	case "seen":
		os.Exit(a.cmdSeen(os.Args[2:]))

	// Balances
	case "balance":
		os.Exit(a.cmdBalance(os.Args[2:]))

	// Lease lock
	case "lock":
		os.Exit(a.cmdLock(os.Args[2:]))
	case "unlock":
		os.Exit(a.cmdUnlock(os.Args[2:]))
	case "wait-lock":
		os.Exit(a.cmdWaitLock(os.Args[2:]))
	case "run-job":
		os.Exit(a.cmdRunJob(os.Args[2:]))

	// Sync
	case "sync":
		os.Exit(a.cmdSync(os.Args[2:]))
	case "status":
		os.Exit(a.cmdStatus(os.Args[2:]))

	default:
		fmt.Fprintf(os.Stderr, "eb: unknown command %q\n", os.Args[1])
		fmt.Fprintln(os.Stderr, "Run 'eb --help' for usage.")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`eb — billing state for edge telecom sites

Append-only event log with ack-pruning. Bounded dedup of inbound messages.
CRDT subscriber balances that merge with the cloud. TTL lease locks for
singleton jobs. One shared SQLite database per site.

Usage:
  eb <command> [flags]

Setup:
  init                          Create the site database (and a starter config)

Event log:
  ingest [flags]                Dedup-check, log, and bill one inbound event
  append <json>                 Append a raw event payload
  ack <seqno>                   Prune everything at or below seqno
  pending [--limit N]           List events awaiting a cloud ack
  reset-seqno <value> --yes     Rebase the seqno counter (disaster recovery)
  drop-all --yes                Wipe the log without rebasing the counter

Dedup window:
  seen <id>                     Check-and-record an inbound message id

Balances:
  balance show <imsi>           Print a subscriber's balance and state
  balance credit <imsi> <n>     Credit (top-up) a balance
  balance debit <imsi> <n>      Debit (charge) a balance
  balance merge <imsi> <state>  Merge a remote serialized state (@file or json)

Lease lock:
  lock <key> [--ttl D]          Take or renew a lease
  unlock <key>                  Release a lease you hold
  wait-lock <key> [--timeout D] Poll with backoff until the lease grants
  run-job <key> -- <cmd> ...    Run cmd while holding (and renewing) the lease

Sync:
  sync [--watch]                Ship pending events to the cloud, apply acks
  status                        Site overview: log, window, balances, leases

Environment:
  EDGEBILL_CONFIG   Config file path (default: edgebill.yaml)
  EDGEBILL_DB       SQLite database path (overrides config)
  EDGEBILL_REPLICA  CRDT replica id for this site (overrides config)
  EDGEBILL_SYNC_URL Cloud ledger ingestion URL (overrides config)
  EDGEBILL_OWNER    Default lease owner (default: hostname)

All commands support --json for machine-readable output.

Exit codes:
  0  success
  1  error
  2  lease denied (held by another owner)
`)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "eb: "+format+"\n", args...)
	os.Exit(1)
}
