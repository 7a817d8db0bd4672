package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sage-erp/pharmacy/cmd/pharmacyctl/cli"
	"github.com/sage-erp/pharmacy/internal/app"
	"github.com/sage-erp/pharmacy/internal/platform/db"
)

const usage = `usage: pharmacyctl <command>

commands:
  migrate                      apply database migrations
  jobs trigger archive-sweep   run one archive sweep now
  jobs trigger order-bill NAME mail the open order bill of provider NAME
  jobs stats                   print default queue statistics
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pharmacyctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(stderr, "load config:", err)
		return 1
	}

	switch rest[0] {
	case "migrate":
		pool, err := db.New(ctx, cfg.PGDSN, 2)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, "migrations applied")
		return 0
	case "jobs":
		return runJobs(ctx, cfg, rest[1:], stdout, stderr)
	default:
		fs.Usage()
		return 2
	}
}

func runJobs(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	c := cli.NewJobsCLI(cfg.RedisAddr)
	defer func() {
		_ = c.Close()
	}()
	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprint(stderr, usage)
			return 2
		}
		arg := ""
		if len(args) > 2 {
			arg = args[2]
		}
		info, err := c.Trigger(ctx, args[1], arg)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return 1
		}
		return 0
	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
}
