package main

import (
	"os"

	automemcmder "github.com/papercomputeco/automem/cmd/automem"
)

func main() {
	cmd := automemcmder.NewAutomemCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
