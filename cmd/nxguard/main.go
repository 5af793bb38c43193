package main

import (
	"os"

	"github.com/nexpy/nxguard/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
