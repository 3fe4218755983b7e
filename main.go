package main

import (
	"os"

	"github.com/dmolinero/pvbess/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
