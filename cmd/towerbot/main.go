package main

import (
	"flag"
	"os"

	"github.com/toweroftemptation/towerbot/pkg/app"
	"github.com/toweroftemptation/towerbot/pkg/log"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version string

func main() {
	configPath := flag.String("config", "", "path to config.toml (optional)")
	flag.Parse()

	app.SetAppVersion(version)
	if err := app.Run("towerbot", *configPath); err != nil {
		log.ErrorLogger().Error("fatal", "err", err)
		os.Exit(1)
	}
}
