package main

import (
	"context"
	"fmt"

	"github.com/stackrun-dev/stackrun/internal/config"
	"github.com/stackrun-dev/stackrun/internal/deps"
	"github.com/stackrun-dev/stackrun/internal/journal"
	"github.com/stackrun-dev/stackrun/internal/journal/factory"
	"github.com/stackrun-dev/stackrun/pkg/client"
)

const defaultAPIUrl = client.DefaultBaseURL

func newAPIClient(f ClientFlags) *client.Client {
	return client.New(client.Config{BaseURL: f.APIUrl, Timeout: f.APITimeout})
}

// runStatus queries a live orchestrator and prints service statuses.
func runStatus(f ClientFlags) error {
	c := newAPIClient(f)
	ctx := context.Background()
	if !c.IsReachable(ctx) {
		return fmt.Errorf("no orchestrator reachable at %s - start one with [api] listen set", orDefault(f.APIUrl))
	}
	if f.Name != "" {
		st, err := c.Status(ctx, f.Name)
		if err != nil {
			return err
		}
		printJSON(st)
		return nil
	}
	sts, err := c.Statuses(ctx)
	if err != nil {
		return err
	}
	printJSON(sts)
	return nil
}

// runStop asks a live orchestrator to stop one service or the run.
func runStop(f ClientFlags) error {
	c := newAPIClient(f)
	ctx := context.Background()
	if !c.IsReachable(ctx) {
		return fmt.Errorf("no orchestrator reachable at %s - start one with [api] listen set", orDefault(f.APIUrl))
	}
	if err := c.Stop(ctx, f.Name); err != nil {
		return err
	}
	if f.Name == "" {
		fmt.Println("run stopping")
		return nil
	}
	st, err := c.Status(ctx, f.Name)
	if err != nil {
		return err
	}
	printJSON(st)
	return nil
}

// runDoctor checks every registered tool and prints one row per
// service. Missing tools make the command fail after the full table.
func runDoctor(flags *GlobalFlags) error {
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	results := deps.Doctor(reg.All())
	missing := 0
	for _, r := range results {
		switch r.Status {
		case deps.StatusOK:
			fmt.Printf("%-8s %-12s %s (%s)\n", r.Status, r.Service, r.Tool, r.Path)
		case deps.StatusMissing:
			missing++
			fmt.Printf("%-8s %-12s %s", r.Status, r.Service, r.Tool)
			if r.Hint != "" {
				fmt.Printf(" - %s", r.Hint)
			}
			fmt.Println()
		default:
			fmt.Printf("%-8s %-12s no tool required\n", r.Status, r.Service)
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d required tool(s) missing", missing)
	}
	return nil
}

// runJournal reads the configured journal store and prints recent
// entries, newest first.
func runJournal(globalFlags *GlobalFlags, f *JournalFlags) error {
	cfg, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		return err
	}
	sink, err := factory.New(cfg.Journal)
	if err != nil {
		return err
	}
	if sink == nil {
		return fmt.Errorf("journal is disabled in configuration")
	}
	defer func() { _ = sink.Close() }()

	rd, ok := sink.(journal.Reader)
	if !ok {
		return fmt.Errorf("journal driver %q cannot be read back", cfg.Journal.Driver)
	}
	entries, err := rd.Recent(context.Background(), f.Limit)
	if err != nil {
		return err
	}
	printJSON(entries)
	return nil
}

func orDefault(apiURL string) string {
	if apiURL == "" {
		return defaultAPIUrl
	}
	return apiURL
}
