package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/textindex/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/textindex/pkg/errors"
)

type inspectFlags struct {
	term      string
	doc       int
	tokenizer string
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	flags := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect <segment file>",
		Short: "Print the header of a segment, the postings of a term or a stored document",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := root.loadConfig(); err != nil {
				return err
			}
			return runInspect(cmd, flags, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.term, "term", "t", "", "print the postings of this term")
	f.IntVarP(&flags.doc, "doc", "d", -1, "print the stored fields of this document id")
	f.StringVar(&flags.tokenizer, "tokenizer", "ascii", "tokenizer used to normalize --term")
	return cmd
}

func runInspect(cmd *cobra.Command, flags *inspectFlags, path string) error {
	out := cmd.OutOrStdout()
	r, err := segment.OpenFile(afero.NewOsFs(), path)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	label := color.New(color.Bold)
	label.Fprintf(out, "segment   ")
	fmt.Fprintln(out, r.Path())
	fmt.Fprintf(out, "version   %d\n", h.Version)
	fmt.Fprintf(out, "documents %d\n", r.DocCount())
	fmt.Fprintf(out, "terms     %d\n", r.TermCount())
	fmt.Fprintf(out, "positions %v\n", r.TrackPositions())
	fmt.Fprintf(out, "content   %s\n", r.ContentField())
	fmt.Fprintf(out, "created   %s\n", r.CreatedAt().UTC().Format(time.RFC3339))

	if cmd.Flags().Changed("term") {
		if err := printPostings(cmd, r, flags); err != nil {
			return err
		}
	}
	if flags.doc >= 0 {
		fields, ok := r.StoredFields(document.ID(flags.doc))
		if !ok {
			return apperrors.Newf(apperrors.ErrInput, "document %d not in segment", flags.doc)
		}
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "%s=%s\n", k, fields[k])
		}
	}
	return nil
}

func printPostings(cmd *cobra.Command, r *segment.Reader, flags *inspectFlags) error {
	out := cmd.OutOrStdout()
	tok, err := tokenizer.ByName(flags.tokenizer)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidConfig, err, "selecting tokenizer")
	}
	terms := tokenizer.Terms(tok, flags.term)
	if len(terms) != 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "%q does not normalize to exactly one term", flags.term)
	}
	postings, err := r.Postings(terms[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "term %q: %d documents\n", terms[0], len(postings))
	for _, p := range postings {
		if r.TrackPositions() {
			fmt.Fprintf(out, "  doc=%d freq=%d positions=%v\n", p.DocID, p.Frequency, p.Positions)
		} else {
			fmt.Fprintf(out, "  doc=%d freq=%d\n", p.DocID, p.Frequency)
		}
	}
	return nil
}
