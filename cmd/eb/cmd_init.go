package main

import (
	"flag"
	"fmt"
	"os"
)

// starterConfig is written by init when no config file exists yet.
const starterConfig = `# edgebill site configuration
db_path: edgebill.db
# Stable CRDT replica id for this site. Set once, never change.
replica_id: ""

dedup:
  max_len: 5000
  # fail-open: treat an unverifiable inbound id as unseen (may reprocess).
  # fail-closed: treat it as seen (may drop a legitimate event).
  policy: fail-open

sync:
  endpoint: ""
  batch_size: 100
  interval: 10s
  metrics_port: 0

lease:
  ttl: 60s
`

func (a *app) cmdInit(args []string) int {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	jsonOut := flags.Bool("json", false, "JSON output")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	// Opening the store in newApp already created the schema; init's other
	// job is seeding a config file for the operator to fill in.
	cfgPath := envOr("EDGEBILL_CONFIG", "edgebill.yaml")
	wrote := false
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := os.WriteFile(cfgPath, []byte(starterConfig), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "eb: init: write %s: %v\n", cfgPath, err)
			return 1
		}
		wrote = true
	}

	if *jsonOut {
		printJSON(map[string]interface{}{
			"db_path":        a.cfg.DBPath,
			"config_path":    cfgPath,
			"config_written": wrote,
			"replica_id":     a.replicaID(),
		})
	} else {
		fmt.Printf("initialized site database %s\n", a.cfg.DBPath)
		if wrote {
			fmt.Printf("wrote starter config %s — set replica_id and sync.endpoint\n", cfgPath)
		}
	}
	return 0
}
