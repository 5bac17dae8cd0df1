package main

import (
	"os"

	"txn-ingest/cmd/txningest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
