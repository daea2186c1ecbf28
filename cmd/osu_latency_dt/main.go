package main

import (
	"os"

	"github.com/lightstep/commbench/config"
	"github.com/lightstep/commbench/runner"
)

func main() {
	os.Exit(runner.Main(config.Latency))
}
