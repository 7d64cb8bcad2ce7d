package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

const (
	flagCategoryLogging  = "Logging Configuration:"
	flagCategorySampling = "Sampling Configuration:"
)

var rootConfig = struct {
	LogLevel   string
	LogFormat  string
	LogNoColor bool
}{
	LogLevel:   "info",
	LogFormat:  "text",
	LogNoColor: false,
}

var app = &cli.Command{
	Name:      "lmsampler",
	Usage:     "Produces a statistically thinned copy of a list-mode PET acquisition",
	UsageText: "lmsampler --acqFile <path> -r <fraction> [-m timeBlock|event] [-o <path>] [-s <seed>] [-v <level>]",
	Flags:     append(cmdThinFlags, rootFlags...),
	Before:    rootBefore,
	Action:    cmdThinAction,
}

var rootFlags = []cli.Flag{
	&cli.StringFlag{
		Name: "log.level",
		Sources: cli.ValueSourceChain{
			Chain: []cli.ValueSource{cli.EnvVar("LMSAMPLER_LOG_LEVEL")},
		},
		Usage:       "Sets an explicity logging level: debug, info, warn, error. Takes precedence over the verbose flag.",
		Destination: &rootConfig.LogLevel,
		Value:       rootConfig.LogLevel,
		Category:    flagCategoryLogging,
	},
	&cli.StringFlag{
		Name: "log.format",
		Sources: cli.ValueSourceChain{
			Chain: []cli.ValueSource{cli.EnvVar("LMSAMPLER_LOG_FORMAT")},
		},
		Usage:       "Sets the format to output the log statements in: text, json",
		Destination: &rootConfig.LogFormat,
		Value:       rootConfig.LogFormat,
		Category:    flagCategoryLogging,
	},
	&cli.BoolFlag{
		Name: "log.nocolor",
		Sources: cli.ValueSourceChain{
			Chain: []cli.ValueSource{cli.EnvVar("LMSAMPLER_LOG_NO_COLOR")},
		},
		Usage:       "Whether to prevent the logger from outputting colored log statements",
		Destination: &rootConfig.LogNoColor,
		Value:       rootConfig.LogNoColor,
		Category:    flagCategoryLogging,
	},
}

func main() {
	sigs := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	go func() {
		defer cancel()
		defer signal.Stop(sigs)

		select {
		case <-ctx.Done():
		case sig := <-sigs:
			log.WithField("signal", sig.String()).Info("Received termination signal - Stopping...")
		}
	}()

	if err := app.Run(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("terminated abnormally")
		os.Exit(1)
	}
}

func rootBefore(c context.Context, cmd *cli.Command) error {
	// everything is given through flags, stray arguments are most likely a
	// mistyped flag
	if cmd.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(cmd.Args().Slice(), " "))
	}

	// read CLI args and configure the global logger
	if err := configureLogger(c, cmd); err != nil {
		return err
	}

	return nil
}

// configureLogger sets the level of the global logger from "--log.level", or
// from "--verbose" when no explicit level is given. The format is either "text"
// or "json". Logs always go to stderr, stdout may carry the output acquisition.
func configureLogger(_ context.Context, cmd *cli.Command) error {
	log.SetOutput(os.Stderr)

	logLevel := log.InfoLevel
	if cmd.IsSet("log.level") {
		switch strings.ToLower(rootConfig.LogLevel) {
		case "debug":
			logLevel = log.DebugLevel
		case "info":
			logLevel = log.InfoLevel
		case "warn":
			logLevel = log.WarnLevel
		case "error":
			logLevel = log.ErrorLevel
		default:
			return fmt.Errorf("unknown log level: %s", rootConfig.LogLevel)
		}
	} else if thinConfig.Verbose > 1 {
		logLevel = log.DebugLevel
	}
	log.SetLevel(logLevel)

	switch strings.ToLower(rootConfig.LogFormat) {
	case "text":
		log.SetFormatter(&log.TextFormatter{
			DisableColors: rootConfig.LogNoColor,
		})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format: %q", rootConfig.LogFormat)
	}

	return nil
}
