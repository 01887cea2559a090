package main

import (
	"os"

	"github.com/solatis/microproto/cmd/microproto/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
