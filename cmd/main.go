package main

import (
	"github.com/denismitr/batchmig/cli"
	"os"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout))
}
