package main

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/discovery"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/publish"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/metrics"
)

type buildFlags struct {
	pattern      string
	recursive    bool
	hidden       bool
	positions    bool
	workers      int
	tokenizer    string
	contentField string
	segmentName  string
	metricsFile  string
}

func newBuildCmd(root *rootOptions) *cobra.Command {
	flags := &buildFlags{}
	cmd := &cobra.Command{
		Use:   "build <index dir> <data dir>",
		Short: "Index the text files of a directory into a new segment",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			cfg.Indexer.IndexDir = args[0]
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBuild(cmd, cfg, args[1])
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.pattern, "pattern", "", "file name pattern, matched case-insensitively (default \"*.txt\")")
	f.BoolVarP(&flags.recursive, "recursive", "r", false, "descend into subdirectories")
	f.BoolVar(&flags.hidden, "include-hidden", false, "index hidden files and directories")
	f.BoolVar(&flags.positions, "positions", false, "record token positions in postings")
	f.IntVarP(&flags.workers, "workers", "w", 0, "concurrent file readers (default: number of CPUs)")
	f.StringVar(&flags.tokenizer, "tokenizer", "", "tokenizer: ascii or unicode")
	f.StringVar(&flags.contentField, "content-field", "", "name of the indexed content field")
	f.StringVar(&flags.segmentName, "segment-name", "", "file name of the committed segment")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "write build metrics to this Prometheus textfile")
	return cmd
}

// apply copies every flag the user set over the loaded config.
func (b *buildFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("pattern") {
		cfg.Discovery.Pattern = b.pattern
	}
	if f.Changed("recursive") {
		cfg.Discovery.Recursive = b.recursive
	}
	if f.Changed("include-hidden") {
		cfg.Discovery.IncludeHidden = b.hidden
	}
	if f.Changed("positions") {
		cfg.Indexer.TrackPositions = b.positions
	}
	if f.Changed("workers") {
		cfg.Indexer.Workers = b.workers
	}
	if f.Changed("tokenizer") {
		cfg.Indexer.Tokenizer = b.tokenizer
	}
	if f.Changed("content-field") {
		cfg.Indexer.ContentField = b.contentField
	}
	if f.Changed("segment-name") {
		cfg.Indexer.SegmentName = b.segmentName
	}
	if f.Changed("metrics-file") {
		cfg.Metrics.TextfilePath = b.metricsFile
	}
}

func runBuild(cmd *cobra.Command, cfg *config.Config, dataDir string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	log := logger.WithComponent("cli")

	tok, err := tokenizer.ByName(cfg.Indexer.Tokenizer)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidConfig, err, "selecting tokenizer")
	}
	files, err := discovery.Find(ctx, dataDir, discovery.Options{
		Pattern:       cfg.Discovery.Pattern,
		Recursive:     cfg.Discovery.Recursive,
		IncludeHidden: cfg.Discovery.IncludeHidden,
	})
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	pub := publish.FromConfig(ctx, cfg)
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn("closing notification sinks", "error", err)
		}
	}()

	res, err := indexer.BuildIndex(ctx, discovery.Paths(files), segment.NewDirectory(cfg.Indexer.IndexDir), indexer.Options{
		ContentField:   cfg.Indexer.ContentField,
		TrackPositions: cfg.Indexer.TrackPositions,
		Tokenizer:      tok,
		Workers:        cfg.Indexer.Workers,
		SegmentName:    cfg.Indexer.SegmentName,
		Metrics:        m,
		Publisher:      pub,
	})
	writeMetrics(m, cfg.Metrics.TextfilePath, log)
	if err != nil {
		return err
	}

	warn := color.New(color.FgYellow)
	for _, s := range res.Skipped {
		warn.Fprintf(out, "skipped %s: %v\n", s.Path, s.Err)
	}
	color.New(color.FgGreen).Fprintf(out, "Indexing %d files took %d milliseconds\n",
		res.DocumentCount, res.Elapsed.Milliseconds())
	fmt.Fprintf(out, "segment %s (%d terms, %d bytes)\n", res.Segment.Path, res.TermCount, res.Segment.Bytes)
	return nil
}

func writeMetrics(m *metrics.Metrics, path string, log *slog.Logger) {
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		log.Warn("metrics not written", "path", path, "error", err)
	}
}
