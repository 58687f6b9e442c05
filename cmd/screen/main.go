// Command screen renders the weather screen once for the current location and exits.
//
//	screen [-config-dir config] [-lat 47.6 -lon -122.3] [-locale en-US] [-tz America/Los_Angeles] [-json]
//
// Without -lat/-lon the location mode from the config file decides; mode none
// behaves like a denied permission prompt and prints only the header.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-screen-service/internal/client"
	"github.com/kjstillabower/weather-screen-service/internal/config"
	"github.com/kjstillabower/weather-screen-service/internal/forecast"
	"github.com/kjstillabower/weather-screen-service/internal/location"
	"github.com/kjstillabower/weather-screen-service/internal/observability"
	"github.com/kjstillabower/weather-screen-service/internal/render"
	"github.com/kjstillabower/weather-screen-service/internal/screen"
	"github.com/kjstillabower/weather-screen-service/internal/validation"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(exitError)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, logger)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, logger *zap.Logger) int {
	fs := flag.NewFlagSet("screen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configDir := fs.String("config-dir", "config", "directory holding {ENV_NAME}.yaml and secrets.yaml")
	lat := fs.String("lat", "", "latitude of a granted device location")
	lon := fs.String("lon", "", "longitude of a granted device location")
	localeTag := fs.String("locale", "", "BCP 47 display locale (default from config)")
	zone := fs.String("tz", "", "IANA display time zone (default from config)")
	asJSON := fs.Bool("json", false, "print the view model as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return exitUsage
	}

	coord, present, err := validation.ParseCoordinate(*lat, *lon)
	if err != nil {
		fmt.Fprintf(stderr, "invalid -lat/-lon: %v\n", err)
		return exitUsage
	}

	cfg, err := config.LoadFrom(*configDir)
	if err != nil {
		logger.Error("config", zap.Error(err))
		return exitError
	}

	if *localeTag == "" {
		*localeTag = cfg.DisplayLocale
	}
	if *zone == "" {
		*zone = cfg.DisplayTimezone
	}
	formatter, err := forecast.NewFormatter(*localeTag, *zone)
	if err != nil {
		fmt.Fprintf(stderr, "invalid -locale/-tz: %v\n", err)
		return exitUsage
	}

	var resolver location.Resolver
	if present {
		resolver = location.Static{Coordinate: coord}
	} else {
		resolver, err = location.FromConfig(cfg.Location, logger)
		if err != nil {
			logger.Error("location", zap.Error(err))
			return exitError
		}
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Error("weather client", zap.Error(err))
		return exitError
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	ctx = observability.WithLogger(ctx, logger)

	session := screen.NewPipeline(weatherClient).Run(ctx, resolver, formatter)
	view := render.NewView(session, cfg.IconURLTemplate)

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(view)
	} else {
		err = render.Text(stdout, view)
	}
	if err != nil {
		logger.Error("write screen", zap.Error(err))
		return exitError
	}
	return exitOK
}
