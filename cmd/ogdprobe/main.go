// Command ogdprobe fetches a dataset's catalog page from data.gov.in and
// prints its metadata. Use it before a sync to confirm the resource id points
// at the dataset you expect.
//
// Exit codes:
//   - 0 on success
//   - 2 for usage/config errors
//   - 1 for fetch/parse errors
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"ogdsync/internal/ogd"
)

func main() {
	client := &http.Client{Timeout: 30 * time.Second}
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, client))
}

func run(
	ctx context.Context,
	args []string,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("ogdprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)

	pageURL := fs.String("url", "", "catalog page URL on data.gov.in (required)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *pageURL == "" {
		fmt.Fprintln(stderr, "ogdprobe: -url is required")
		fs.Usage()
		return 2
	}

	info, err := ogd.FetchCatalog(ctx, httpClient, *pageURL)
	if err != nil {
		fmt.Fprintf(stderr, "ogdprobe: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "title: %s\n", info.Title)
	if info.RecordCount > 0 {
		fmt.Fprintf(stdout, "records: %d\n", info.RecordCount)
	}

	labels := make([]string, 0, len(info.Fields))
	for label := range info.Fields {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(stdout, "%s: %s\n", label, info.Fields[label])
	}
	return 0
}
