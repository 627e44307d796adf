// Command ledgerbridge is the CLI entry point for the document-to-ledger
// reconciliation pipeline.
package main

import "github.com/LeJamon/ledgerbridge/internal/cli"

func main() {
	cli.Execute()
}
