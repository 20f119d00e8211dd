package main

import (
	"os"

	"github.com/mcfalli/TickSTockAppV2-sub016/cmd/tickstream/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
