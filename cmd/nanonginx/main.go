// Command nanonginx is the process entry point: parse flags, load the
// configuration file, bind every declared endpoint, and run the reactor
// until the process is killed, per spec.md §6.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nanonginx/nanonginx/internal/config"
	"github.com/nanonginx/nanonginx/internal/engine"
	"github.com/nanonginx/nanonginx/internal/handler"
	"github.com/nanonginx/nanonginx/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = pflag.StringP("config", "c", "nanonginx.conf", "path to the configuration file")
		logLevel   = pflag.StringP("log-level", "l", "info", "zap log level (debug, info, warn, error)")
	)
	pflag.Parse()
	if pflag.NArg() > 0 {
		*configPath = pflag.Arg(0)
	}

	log, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nanonginx: building logger:", err)
		return 1
	}
	defer log.Sync()

	model, err := config.Load(*configPath)
	if err != nil {
		log.Error("loading configuration", zap.String("path", *configPath), zap.Error(err))
		return 1
	}

	h := handler.New(model, log)
	reactor, err := engine.New(log, h.Resolve, h.Handle)
	if err != nil {
		log.Error("creating reactor", zap.Error(err))
		return 1
	}

	endpoints := model.Endpoints()
	if len(endpoints) == 0 {
		log.Error("configuration declares no listen endpoints")
		return 1
	}

	for _, ep := range endpoints {
		l, err := engine.NewListener(ep)
		if err != nil {
			log.Error("binding listener", zap.String("endpoint", ep.String()), zap.Error(err))
			return 1
		}
		if err := reactor.AddListener(l); err != nil {
			log.Error("registering listener", zap.String("endpoint", ep.String()), zap.Error(err))
			return 1
		}
		log.Info("listening", zap.String("endpoint", ep.String()))
	}

	if err := reactor.Run(); err != nil {
		log.Error("reactor exited", zap.Error(err))
		return 1
	}
	return 0
}
