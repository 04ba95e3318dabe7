package main

import (
	"os"

	"github.com/quickledger/quickledger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
