// Command statekitd runs the statekit inspection daemon: the durable and
// session stores, the auth cache and the HTTP API for the browser extension.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grantsnap/statekit/app"
	"github.com/grantsnap/statekit/config"
	"github.com/grantsnap/statekit/version"
)

const serviceName = "statekitd"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "path to config.yml")
	envFile := flag.String("env", "", "path to .env file")
	showVersion := flag.Bool("version", false, "print the build version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(serviceName, version.Get())
		return nil
	}

	opts := []config.LoaderOption{config.WithEnvPrefix("STATEKIT")}
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}

	var cfg app.Config
	if err := config.LoadConfig(serviceName, &cfg, opts...); err != nil {
		return err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	if cfg.Version == "" {
		cfg.Version = version.Get().String()
	}

	ctx := context.Background()
	a, err := app.New(ctx, &cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
