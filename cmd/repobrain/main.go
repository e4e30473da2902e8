package main

import (
	"github.com/repobrain/repobrain/internal/adapters/driving/cli"
)

func main() {
	cli.Execute()
}
