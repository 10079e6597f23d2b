package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"sheetrelay/gateway/cmd/sheetrelay/commands"
)

// @title Sheet Relay API
// @version 1.0
// @description Tracks spreadsheet jobs handed to an n8n workflow and serves their results.
// @BasePath /api
// @securityDefinitions.apikey SharedSecret
// @in header
// @name X-API-Secret
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "sheetrelay",
		Usage: "relay spreadsheet uploads to an n8n workflow and track their jobs",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, the webhook dispatcher and the expiry sweeper",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.ServeAction,
			},
			{
				Name:   "check-config",
				Usage:  "print the resolved configuration and whether the webhook endpoint is usable",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.CheckConfigAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "path to an optional .env file",
		Value: ".env",
	}
}
