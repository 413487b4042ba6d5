// Command tonal-divider follows the tonal plane of live music and serves a
// live view of its division structure.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/justestif/tonal-divider/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return cli.Execute(context.Background())
}
