package main

import (
	"os"

	"github.com/hwbp-go/hwbp/cmd/hwbp/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
