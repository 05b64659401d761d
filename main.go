package main

import (
	"os"

	"github.com/datamancy/corpusd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
