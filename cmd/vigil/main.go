package main

import (
	"os"

	"github.com/dshills/vigil/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
