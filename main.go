package main

import (
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
)

func main() {
	xlog.SetLogger(xlog.NewLogger(xlog.LogLevel("info"), "text"))

	// .env files first, so kong sees their values as env vars
	envFiles := []string{".env", "listening.env"}
	if home, err := os.UserHomeDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(home, ".config/listening.env"))
	}
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		xlog.Debug("loading environment variables from file", "envFile", envFile)
		if err := godotenv.Load(envFile); err != nil {
			xlog.Error("failed to load environment variables from file", "error", err, "envFile", envFile)
		}
	}

	ctx := kong.Parse(&CLI,
		kong.Name("listening"),
		kong.Description("Builds listening comprehension exercises from YouTube videos."),
		kong.UsageOnError(),
	)

	xlog.SetLogger(xlog.NewLogger(xlog.LogLevel(CLI.LogLevel), CLI.LogFormat))

	if err := ctx.Run(&CLI.Context); err != nil {
		xlog.Fatal("error running command", "error", err)
	}
}
