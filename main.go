// This is the main entry point of the Memories API.
// `memories serve` (the default) loads configuration, builds the stores, services and
// handlers, and runs the HTTP server until SIGINT or SIGTERM. `memories migrate`
// enables the required PostgreSQL extensions and applies pending migrations.
//
// @title Memories API
// @version 1.0
// @description Share memories as posts: list, search, like and comment, with signup and signin.
// @contact.name API Support
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize
package main

import (
	"errors"
	"os"

	// `godotenv` loads environment variables from a .env file, useful for development.
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/user/memories-go/config"
	"github.com/user/memories-go/db"
	"github.com/user/memories-go/logging"
)

func main() {
	app := &cli.App{
		Name:  "memories",
		Usage: "Memories API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before reading the environment (missing file is not an error)",
			},
		},
		Before: func(c *cli.Context) error {
			if err := godotenv.Load(c.String("env-file")); err != nil {
				logrus.WithError(err).Debug(".env file not loaded")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "port", Usage: "listen port, overrides PORT"},
				},
				Action: serveCommand,
			},
			{
				Name:   "migrate",
				Usage:  "enable PostgreSQL extensions and apply pending migrations",
				Action: migrateCommand,
			},
		},
		// Running the binary without a command serves, like the historical entry point.
		Action: serveCommand,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("memories exited with error")
	}
}

func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.Log)
	return cfg, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port := c.String("port"); port != "" {
		cfg.Server.Port = port
	}
	return serve(c.Context, cfg)
}

func migrateCommand(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Backend != config.StoreBackendPostgres || cfg.Store.Pool == nil {
		return errors.New("migrate requires STORE_BACKEND=postgres")
	}

	pool, err := db.NewPool(cfg.Store.Pool)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.EnableExtensions(pool); err != nil {
		return err
	}
	return db.RunMigrations(cfg.Store.Pool, cfg.Store.MigrationsPath)
}
