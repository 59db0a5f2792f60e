package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/benvon/smart-timelog/cmd/timelog/commands"
)

func main() {
	if err := commands.NewRootCmd(commands.DefaultEnv()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
