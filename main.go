package main

import (
	"embed"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"

	vpApp "vpatient/internal/app"
	"vpatient/internal/config"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("failed to load env: %v", err)
	}
	cfg, err := config.ShellFromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	app := vpApp.New(cfg, newLogger(cfg.Verbose))
	proxy, err := app.AssetHandler()
	if err != nil {
		log.Fatalf("failed to create page proxy: %v", err)
	}

	// macOS needs an Edit menu for Cmd+C/V/X/A to reach the WebView
	appMenu := menu.NewMenu()
	appMenu.Append(menu.EditMenu())

	err = wails.Run(&options.App{
		Title:     "Virtual Patient",
		Width:     1280,
		Height:    860,
		MinWidth:  800,
		MinHeight: 600,
		AssetServer: &assetserver.Options{
			Assets:  assets,
			Handler: proxy,
		},
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 1},
		Menu:             appMenu,
		OnStartup:        app.Startup,
		OnBeforeClose:    app.BeforeClose,
		OnShutdown:       app.Shutdown,
		Bind: []interface{}{
			app,
		},
		Mac: &mac.Options{
			About: &mac.AboutInfo{
				Title:   "Virtual Patient",
				Message: "Tobacco cessation training activity",
			},
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
