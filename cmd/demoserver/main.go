// Command demoserver starts a deliberately weak site to point auditai at.
// Usage: go run ./cmd/demoserver [--port 9999] [--waf] [--level 1]
package main

import (
	"os"

	"github.com/raysh454/auditai/internal/cli"
)

func main() {
	os.Exit(cli.Run(cli.NewDemoServerCommand()))
}
