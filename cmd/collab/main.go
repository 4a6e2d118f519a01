// Command collab runs code through the execution service from a terminal
// and inspects shared snippets.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
