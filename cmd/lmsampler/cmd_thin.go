package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"

	"github.com/probe-lab/lmsampler/config"
	"github.com/probe-lab/lmsampler/core"
	"github.com/probe-lab/lmsampler/petsird"
)

var thinConfig = &config.Sampler{
	AcqFile:       "",
	OutputFile:    "",
	RetentionFrac: 1.0,
	Method:        config.SampleTimeBlock.String(),
	Seed:          nil,
	Verbose:       0,
	Meter:         otel.GetMeterProvider().Meter("lmsampler"),
}

// where the acquisition goes when no output file is given, and where the
// confirmation prompt reads from and writes to
var (
	stdout    io.Writer = os.Stdout
	promptIn  io.Reader = os.Stdin
	promptOut io.Writer = os.Stderr
)

var cmdThinFlags = []cli.Flag{
	&cli.StringFlag{
		Name: "acqFile",
		Sources: cli.ValueSourceChain{
			Chain: []cli.ValueSource{cli.EnvVar("LMSAMPLER_ACQ_FILE")},
		},
		Usage:       "The acquisition, in PETSIRD format, to sample from",
		Required:    true,
		Destination: &thinConfig.AcqFile,
		Category:    flagCategorySampling,
	},
	&cli.FloatFlag{
		Name:        "retentionFrac",
		Aliases:     []string{"r"},
		Usage:       "The expected fraction of retained events/time blocks, in [0,1]",
		Required:    true,
		Destination: &thinConfig.RetentionFrac,
		Category:    flagCategorySampling,
		Action:      validateRetentionFlag,
	},
	&cli.StringFlag{
		Name:    "randoMethod",
		Aliases: []string{"m"},
		Sources: cli.ValueSourceChain{
			Chain: []cli.ValueSource{cli.EnvVar("LMSAMPLER_METHOD")},
		},
		Usage:       "The method used for the retention: " + config.ListAvailableMethods(),
		Value:       thinConfig.Method,
		Destination: &thinConfig.Method,
		Category:    flagCategorySampling,
		Action:      validateMethodFlag,
	},
	&cli.StringFlag{
		Name:        "outputFile",
		Aliases:     []string{"o"},
		Usage:       "Path of the resulting acquisition. If not defined, it is written to stdout",
		DefaultText: "stdout",
		Destination: &thinConfig.OutputFile,
		Category:    flagCategorySampling,
	},
	&cli.IntFlag{
		Name:     "seed",
		Aliases:  []string{"s"},
		Usage:    "Seed of the random generator, makes the output reproducible",
		Category: flagCategorySampling,
		Action: func(_ context.Context, _ *cli.Command, seed int64) error {
			s := uint64(seed)
			thinConfig.Seed = &s
			return nil
		},
	},
	&cli.IntFlag{
		Name:        "verbose",
		Aliases:     []string{"v"},
		Usage:       "Level of verbosity: >0 prints the summary, >1 enables debug logs",
		Value:       thinConfig.Verbose,
		Destination: &thinConfig.Verbose,
		Category:    flagCategoryLogging,
	},
}

func validateRetentionFlag(_ context.Context, _ *cli.Command, f float64) error {
	if !(f >= 0 && f <= 1) {
		return errors.Wrapf(config.ErrInvalidRetention, "got %v", f)
	}
	return nil
}

func validateMethodFlag(_ context.Context, _ *cli.Command, s string) error {
	_, err := config.ParseSamplingMethod(s)
	return err
}

var errOutputIsInput = errors.New("output file is the input acquisition")

type acquisitionSink interface {
	core.AcquisitionWriter
	Close() error
}

func cmdThinAction(ctx context.Context, cmd *cli.Command) (err error) {
	if err := thinConfig.Validate(); err != nil {
		return err
	}
	method, err := thinConfig.SamplingMethod()
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"acquisition":    thinConfig.AcqFile,
		"output":         outputName(),
		"method":         method,
		"retention_frac": thinConfig.RetentionFrac,
		"seeded":         thinConfig.Seed != nil,
	}).Debug("thinning acquisition...")

	// the input has to be valid before anything gets written
	reader, err := petsird.Open(thinConfig.AcqFile)
	if err != nil {
		return err
	}
	defer reader.Close()

	header, err := reader.ReadHeader()
	if err != nil {
		return errors.Wrapf(err, "reading %s", thinConfig.AcqFile)
	}

	if err := checkOutputPath(); err != nil {
		return err
	}

	if thinConfig.ToStdout() && thinConfig.Verbose > 0 {
		if err := confirmStdout(); err != nil {
			return err
		}
	}

	thinner, err := core.NewThinner(&core.ThinnerConfig{
		Method:        method,
		RetentionFrac: thinConfig.RetentionFrac,
		Rand:          core.NewRand(thinConfig.Seed),
		Meter:         thinConfig.Meter,
	})
	if err != nil {
		return err
	}

	sink, err := openOutput()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	stats, err := thinner.Thin(ctx, header, reader, sink)
	if err != nil {
		return err
	}

	reportSummary(stats)
	return nil
}

func outputName() string {
	if thinConfig.ToStdout() {
		return "stdout"
	}
	return thinConfig.OutputFile
}

// checkOutputPath refuses to write over the acquisition being read, creating
// the output would truncate it mid-stream
func checkOutputPath() error {
	if thinConfig.ToStdout() {
		return nil
	}
	out, err := os.Stat(thinConfig.OutputFile)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "checking output file")
	}
	in, err := os.Stat(thinConfig.AcqFile)
	if err != nil {
		return errors.Wrap(err, "checking acquisition file")
	}
	if os.SameFile(in, out) {
		return errors.Wrapf(errOutputIsInput, "%s", thinConfig.OutputFile)
	}
	return nil
}

func openOutput() (acquisitionSink, error) {
	if thinConfig.ToStdout() {
		return petsird.NewWriter(stdout), nil
	}
	return petsird.Create(thinConfig.OutputFile)
}

// confirmStdout warns that log lines could end up in the acquisition if the
// terminal output is redirected, and waits for the user to go on.
func confirmStdout() error {
	fmt.Fprintln(promptOut, "Warning: if the output is redirected into a file, the verbosity might break the file produced.")
	fmt.Fprint(promptOut, "Press Enter to continue...")
	if _, err := bufio.NewReader(promptIn).ReadString('\n'); err != nil {
		return errors.Wrap(err, "waiting for confirmation")
	}
	return nil
}

func reportSummary(stats core.Stats) {
	logger := log.WithField("method", stats.Method)
	for _, line := range stats.Summary() {
		if thinConfig.Verbose > 0 {
			logger.Info(line)
		} else {
			logger.Debug(line)
		}
	}
}
