package main

import (
	"os"

	"github.com/mvp-joe/kernel-memory/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
