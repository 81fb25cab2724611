package main

import (
	"os"

	"github.com/hostlink/hostlink/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
