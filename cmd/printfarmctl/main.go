package main

import (
	"github.com/polyforge/printfarm-go/internal/adapters/cli"
)

func main() {
	cli.Execute()
}
