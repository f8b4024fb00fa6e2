// Command trumpsword collects policy events and tracks them through workflows.
package main

import (
	"os"

	"github.com/shawcc/trumpsword/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
