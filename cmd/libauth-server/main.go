package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/MrEthical07/libauth/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "libauth-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  string
		envFiles    []string
		printConfig bool
		seed        seedOptions
	)

	flagSet := pflag.NewFlagSet("libauth-server", pflag.ContinueOnError)
	flagSet.StringVar(&configFile, "config", "", "path to a YAML config file")
	flagSet.StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before reading the environment (default: .env if present)")
	flagSet.BoolVar(&printConfig, "print-config", false, "print the effective configuration with secrets redacted and exit")
	flagSet.StringVar(&seed.email, "seed-admin-email", "", "create an ADMIN account at startup (in-memory store only)")
	flagSet.StringVar(&seed.password, "seed-admin-password", "", "password for --seed-admin-email")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "Usage: libauth-server [flags]")
		flagSet.PrintDefaults()
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: configFile, EnvFiles: envFiles})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if printConfig {
		out, err := cfg.DumpYAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApplication(ctx, cfg, seed)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	return app.Run(ctx)
}
