// Command enginecored runs the engine process: Capabilities Registry,
// Tool Registry & Dispatcher, Chat Scratchpad and Streaming Proxy behind
// the HTTP surface of spec.md §6.1, plus the optional Vectorizer Service
// (spec.md §4.5) when --vecdb is set.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
