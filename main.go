package main

import (
	"github.com/localdeck/steward/internal/cli"
)

func main() {
	cli.Execute()
}
