package main

import (
	"fmt"
	"os"

	"github.com/argus-labs/archquery/cmd/archquery/cmd"
	"github.com/rotisserie/eris"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, eris.ToString(err, false))
		os.Exit(1)
	}
}
