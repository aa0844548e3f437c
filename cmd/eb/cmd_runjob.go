package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/daviddao/edgebill/pkg/metrics"
)

// cmdRunJob is the singleton-job runner: take the lease, run the command
// while renewing, and fence — kill the child — the moment a renewal fails,
// so a deposed leader can never keep a second instance of the job alive.
func (a *app) cmdRunJob(args []string) int {
	// Split "eb run-job <key> [flags] -- <cmd> ..." at the separator.
	var ours, child []string
	for i, arg := range args {
		if arg == "--" {
			ours, child = args[:i], args[i+1:]
			break
		}
	}
	if len(child) == 0 {
		fmt.Fprintln(os.Stderr, "usage: eb run-job <key> [--owner ID] [--ttl D] -- <command> [args...]")
		return 1
	}

	flags := flag.NewFlagSet("run-job", flag.ContinueOnError)
	owner := flags.String("owner", "", "lease owner identity")
	ttl := flags.Duration("ttl", 0, "lease lifetime (default from config)")
	if err := flags.Parse(ours); err != nil {
		return 1
	}
	if flags.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: eb run-job <key> [--owner ID] [--ttl D] -- <command> [args...]")
		return 1
	}

	key := flags.Arg(0)
	who := a.resolveOwner(*owner)
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(a.cfg.Lease.TTL)
	}

	if !a.lock.Lock(key, who, lifetime) {
		metrics.LeaseDenied.Inc()
		fmt.Fprintf(os.Stderr, "eb: run-job: %s is held elsewhere, not running\n", key)
		return 2
	}
	metrics.LeaseAcquired.Inc()

	cmd := exec.Command(child[0], child[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Start(); err != nil {
		a.lock.Unlock(key, who)
		fmt.Fprintf(os.Stderr, "eb: run-job: start %q: %v\n", child[0], err)
		return 1
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	// Renew at a third of the ttl so one missed beat is survivable.
	ticker := time.NewTicker(lifetime / 3)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			a.lock.Unlock(key, who)
			if err != nil {
				if ee, ok := err.(*exec.ExitError); ok {
					return ee.ExitCode()
				}
				fmt.Fprintf(os.Stderr, "eb: run-job: %v\n", err)
				return 1
			}
			return 0
		case <-ticker.C:
			if a.lock.Lock(key, who, lifetime) {
				metrics.LeaseAcquired.Inc()
				continue
			}
			// Lost the lease: someone else is (or will be) leader. Kill
			// the child before it can overlap with theirs.
			warnf("run-job: lost lease %s, stopping %q", key, child[0])
			_ = cmd.Process.Kill()
			<-done
			return 1
		}
	}
}
