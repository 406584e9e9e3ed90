// Command tradedesk is the entry point of the trading back-office desk.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alanyoungcy/tradedesk/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
