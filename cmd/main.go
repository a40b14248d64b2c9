package main

import (
	"os"

	"github.com/soundprediction/go-reliquary/cmd/reliquary"
)

func main() {
	if err := reliquary.Execute(); err != nil {
		os.Exit(1)
	}
}
