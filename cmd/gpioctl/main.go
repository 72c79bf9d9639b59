package main

import (
	"github.com/robotalks/gpionode/pkg/cli/sh"
	env "github.com/robotalks/gpionode/pkg/env/client"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
