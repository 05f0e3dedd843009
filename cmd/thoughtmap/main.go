// Command thoughtmap turns live speech into a navigable concept map.
//
// The serve subcommand runs the HTTP server with the websocket and MCP
// endpoints. extract and parse are one-shot helpers for working with the
// extraction pipeline from a terminal. key manages the stored API key.
package main

import (
	"context"
	"fmt"
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "thoughtmap: %v\n", err)
		return 1
	}
	return 0
}
