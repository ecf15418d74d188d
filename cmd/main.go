// Command codeforge drives the software construction workflow from the
// terminal. Three modes: workflow (unattended run), interactive (conversation
// over one accumulated project), compile (graph inspection, no model calls).
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Optional; real environment wins over .env values.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
