package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	env "github.com/robotalks/gpionode/pkg/env/node"
	fx "github.com/robotalks/gpionode/pkg/framework"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	e := env.NewConfig().MustNewEnv()
	glog.Infof("node %s, pins %s", e.Config.ID, e.Pins)
	runner := fx.NewRunner().HandleSignals()
	fx.NewLoop().Add(e).RunOrFail(runner.Context)
	if err := e.Close(); err != nil {
		glog.Errorf("close error: %v", err)
	}
}
