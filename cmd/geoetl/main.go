package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoetl/internal/config"
	"github.com/woozymasta/geoetl/internal/driver"
	"github.com/woozymasta/geoetl/internal/etlerr"
	"github.com/woozymasta/geoetl/internal/format"
	"github.com/woozymasta/geoetl/internal/logger"
	"github.com/woozymasta/geoetl/internal/source"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config" env:"GEOETL_CONFIG" description:"Path to configuration file" default:"geoetl.yaml"`

	Convert ConvertCommand `command:"convert" description:"Convert a dataset to another format"`
	Info    InfoCommand    `command:"info"    description:"Describe one or more datasets"`
	Drivers DriversCommand `command:"drivers" description:"List format drivers and their capabilities"`
	Serve   ServeCommand   `command:"serve"   description:"Publish configured datasets over HTTP"`
}

// app is filled once options are parsed, before a command runs.
var app struct {
	ctx    context.Context
	cfg    *config.Config
	reg    *driver.Registry
	client *http.Client
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}

		opts.Logger.Setup()

		cfg, err := config.Load(opts.ConfigFile)
		if err != nil {
			return err
		}
		log.Debug().
			Str("config", opts.ConfigFile).
			Int("datasets", len(cfg.Datasets)).
			Msg("Configuration loaded")

		app.ctx = ctx
		app.cfg = cfg
		app.reg = format.Default()
		app.client = source.NewClient(cfg.HTTPTimeout)

		return cmd.Execute(args)
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				fmt.Fprintln(os.Stdout, flagsErr.Message)
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, flagsErr.Message)
			os.Exit(1)
		}

		fmt.Fprintln(os.Stderr, etlerr.UserMessage(err))
		if hint := etlerr.Suggestion(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}
