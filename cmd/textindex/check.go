package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/redis"
)

var errUnhealthy = errors.New("health check failed")

func newCheckCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check <index dir>",
		Short: "Verify the index directory, its segment and the configured notification backends",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			cfg.Indexer.IndexDir = args[0]
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runCheck(ctx, cmd, cfg)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall time limit for all checks")
	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	checker := registerChecks(cfg)
	report := checker.Run(ctx)

	out := cmd.OutOrStdout()
	for _, name := range report.Names() {
		comp := report.Components[name]
		status := string(comp.Status)
		switch comp.Status {
		case health.StatusUp:
			status = color.GreenString(status)
		case health.StatusDegraded:
			status = color.YellowString(status)
		default:
			status = color.RedString(status)
		}
		fmt.Fprintf(out, "%-10s %-10s %-8s %s\n", name, status, comp.Latency, comp.Message)
	}
	if report.Status == health.StatusDown {
		return errUnhealthy
	}
	return nil
}

func registerChecks(cfg *config.Config) *health.Checker {
	checker := health.NewChecker()
	dir := segment.NewDirectory(cfg.Indexer.IndexDir)

	checker.Register("index_dir", health.FromError(func(context.Context) error {
		return dir.Probe()
	}))
	checker.Register("segment", func(context.Context) health.ComponentHealth {
		return segmentHealth(dir, cfg.Indexer.SegmentName)
	})
	if len(cfg.Kafka.Brokers) > 0 {
		checker.Register("kafka", health.FromError(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		}))
	}
	if cfg.Redis.Addr != "" {
		checker.Register("redis", health.FromError(func(ctx context.Context) error {
			c, err := redis.NewClient(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			return c.Close()
		}))
	}
	if cfg.Postgres.Host != "" {
		checker.Register("postgres", health.FromError(func(ctx context.Context) error {
			c, err := postgres.New(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			return c.Close()
		}))
	}
	return checker
}

// segmentHealth opens and fully decodes the published segment. A missing
// segment only degrades the report since the next build creates it.
func segmentHealth(dir *segment.Directory, name string) health.ComponentHealth {
	r, err := segment.Open(dir, name)
	if errors.Is(err, fs.ErrNotExist) {
		return health.Degraded("no segment published yet")
	}
	if err != nil {
		return health.Down(err)
	}
	defer r.Close()
	seg, err := r.Load()
	if err == nil {
		err = seg.Validate()
	}
	if err != nil {
		return health.Down(err)
	}
	return health.Up(fmt.Sprintf("%d documents, %d terms", r.DocCount(), r.TermCount()))
}
