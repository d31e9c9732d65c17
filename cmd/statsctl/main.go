package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: could not load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "statsctl",
		Usage: "Upload datasets and inspect correlation statistics",
		Commands: []*cli.Command{
			{
				Name:  "upload",
				Usage: "Upload a CSV file to the ingress endpoint",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "url",
						Usage:   "Upload endpoint",
						Value:   "http://localhost:7071/api/upload_csv",
						EnvVars: []string{"CSVSTATS_URL"},
					},
					&cli.PathFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "CSV file to upload",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "token",
						Usage:   "Bearer token; when empty, one is requested with client credentials",
						EnvVars: []string{"CSVSTATS_TOKEN"},
					},
					&cli.StringFlag{
						Name:    "token-url",
						Usage:   "OAuth2 token endpoint for the client credentials flow",
						EnvVars: []string{"OAUTH_TOKEN_URL"},
					},
					&cli.StringFlag{
						Name:    "client-id",
						EnvVars: []string{"OAUTH_CLIENT_ID"},
					},
					&cli.StringFlag{
						Name:    "client-secret",
						EnvVars: []string{"OAUTH_CLIENT_SECRET"},
					},
					&cli.StringSliceFlag{
						Name:    "scope",
						Usage:   "Scopes to request with client credentials",
						EnvVars: []string{"OAUTH_SCOPES"},
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Value: 30 * time.Second,
					},
				},
				Action: runUpload,
			},
			{
				Name:  "token",
				Usage: "Mint an HS256 development token accepted by AUTH_HMAC_SECRET",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "audience",
						Required: true,
						EnvVars:  []string{"AUTH_AUDIENCE"},
					},
					&cli.StringSliceFlag{
						Name:  "scope",
						Value: cli.NewStringSlice("Csv.Writer"),
					},
					&cli.StringFlag{
						Name:     "secret",
						Required: true,
						EnvVars:  []string{"AUTH_HMAC_SECRET"},
					},
					&cli.StringFlag{
						Name:    "issuer",
						EnvVars: []string{"AUTH_ISSUER"},
					},
					&cli.StringFlag{
						Name:  "subject",
						Value: "statsctl",
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Value: time.Hour,
					},
				},
				Action: runToken,
			},
			{
				Name:  "transform",
				Usage: "Compute the statistics report for a local CSV file",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Required: true,
					},
					&cli.PathFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Write the report here instead of stdout",
					},
				},
				Action: runTransform,
			},
			{
				Name:  "get",
				Usage: "Download an object from the configured storage backend",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "key",
						Usage: "Object key; defaults to STORAGE_OUTPUT_KEY",
					},
					&cli.PathFlag{
						Name:    "out",
						Aliases: []string{"o"},
					},
				},
				Action: runGet,
			},
			{
				Name:  "runs",
				Usage: "List recent pipeline runs from the run ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db-url",
						Usage:    "Database connection string",
						Required: true,
						EnvVars:  []string{"DATABASE_URL"},
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
					},
				},
				Action: runRuns,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
