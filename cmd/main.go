// cmd/main.go is the application entry point. Subcommands run the HTTP
// server, the background jobs, the mail relay and the schema migrations.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
