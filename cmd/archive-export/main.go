package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/models/reports"
)

func main() {
	orderID := flag.Int("order-id", 0, "Required: id of the merged-away purchase order")
	out := flag.String("out", "", "Output xlsx path (default purchase-order-<id>-archive.xlsx)")
	flag.Parse()

	if *orderID <= 0 {
		fmt.Fprintln(os.Stderr, "--order-id is required")
		os.Exit(1)
	}
	path := *out
	if path == "" {
		path = fmt.Sprintf("purchase-order-%d-archive.xlsx", *orderID)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()

	n, err := reports.ExportPurchaseOrderArchive(context.Background(), db, *orderID, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d archived items to %s\n", n, path)
}
