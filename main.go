package main

import (
	"os"

	"github.com/nextdhcp/nextpool/cmd"
	_ "github.com/nextdhcp/nextpool/core"
)

func main() {
	if err := cmd.Root.Execute(); err != nil {
		os.Exit(1)
	}
}
