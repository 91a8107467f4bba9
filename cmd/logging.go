package cmd

import (
	"github.com/urfave/cli"

	"github.com/achilleasa/go-lidar/config"
	"github.com/achilleasa/go-lidar/log"
)

var logger = log.New("go-lidar")

func setupLogging(ctx *cli.Context, cfg *config.Config) error {
	logCfg := log.Config{
		ToStdout: cfg.Logging.ToStdout,
		Level:    cfg.Logging.Level,
		File:     cfg.Logging.File,
	}

	if ctx.GlobalBool("v") {
		logCfg.Level = "INFO"
	}
	if ctx.GlobalBool("vv") {
		logCfg.Level = "DEBUG"
	}

	return log.Configure(logCfg)
}
