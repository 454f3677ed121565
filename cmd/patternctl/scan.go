package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"pattern-sync/internal/indexer"
	"pattern-sync/internal/store"
)

var (
	scanList   bool
	scanFormat string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Load a store root and report what it holds",
	Long: `Walk the store root, load every tracked file and print a summary.
Files that fail to load (wrong size, not a bitmap, locked) are counted as
failed. With --list every loaded file is printed with its tag and size.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession()
		if err != nil {
			return err
		}
		res, err := indexer.Scan(cmd.Context(), sess.store, sess.loader, sess.config.ScanWorkers)
		if err != nil {
			return err
		}
		return printScan(cmd.OutOrStdout(), sess.store, res)
	},
}

func init() {
	scanCmd.Flags().BoolVarP(&scanList, "list", "l", false, "print every loaded file")
	scanCmd.Flags().StringVar(&scanFormat, "format", "text", "output format (text or json)")
	rootCmd.AddCommand(scanCmd)
}

type scanReport struct {
	indexer.ScanResult
	Root  string       `json:"root"`
	Files []reportFile `json:"files,omitempty"`
}

type reportFile struct {
	Path   string `json:"path"`
	Tag    string `json:"tag"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func printScan(w io.Writer, s *store.Store, res indexer.ScanResult) error {
	report := scanReport{ScanResult: res, Root: s.Policy().Root}
	if scanList {
		elems, err := s.Elements()
		if err != nil {
			return err
		}
		for _, el := range elems {
			report.Files = append(report.Files, reportFile{
				Path:   el.Path,
				Tag:    el.Record.Tag,
				Width:  el.Record.Pattern.Width(),
				Height: el.Record.Pattern.Height(),
			})
		}
	}

	switch scanFormat {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "text":
	default:
		return fmt.Errorf("unknown format %q", scanFormat)
	}

	fmt.Fprintf(w, "%s: %d loaded, %d failed in %v (%s)\n",
		res.Store, res.Loaded, res.Failed, res.Duration, report.Root)
	for _, f := range report.Files {
		fmt.Fprintf(w, "  %-24s %dx%d  %s\n", f.Tag, f.Width, f.Height, f.Path)
	}
	return nil
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List the tags of a store with their file counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession()
		if err != nil {
			return err
		}
		if _, err := indexer.Scan(cmd.Context(), sess.store, sess.loader, sess.config.ScanWorkers); err != nil {
			return err
		}
		counts, err := tagCounts(sess.store)
		if err != nil {
			return err
		}

		tags := make([]string, 0, len(counts))
		for tag := range counts {
			tags = append(tags, tag)
		}
		sort.Slice(tags, func(i, j int) bool {
			return strings.ToLower(tags[i]) < strings.ToLower(tags[j])
		})
		for _, tag := range tags {
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d\n", tag, counts[tag])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagsCmd)
}

func tagCounts(s *store.Store) (map[string]int, error) {
	elems, err := s.Elements()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, el := range elems {
		counts[el.Record.Tag]++
	}
	return counts, nil
}
