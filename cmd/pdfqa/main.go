package main

import (
	"os"

	"gwi.com/pdf-qa/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
