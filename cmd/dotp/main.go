package main

import (
	"os"

	"github.com/fahmaliyi/dotp/cli"
)

func main() {
	os.Exit(cli.Execute())
}
