// Command auditai runs the scan API or one-shot scans from the terminal.
//
// Usage:
//
//	auditai serve [--config auditai.yaml]
//	auditai scan example.com --authorized [--analyze auto] [--pdf report.pdf]
package main

import (
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/raysh454/auditai/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
