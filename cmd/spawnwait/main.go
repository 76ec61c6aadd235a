package main

import (
	"github.com/Paintersrp/spawnwait/internal/cli"
	"github.com/Paintersrp/spawnwait/internal/metrics"
)

func main() {
	metrics.EmitBuildInfo()
	cli.Execute()
}
