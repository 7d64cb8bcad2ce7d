package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/probe-lab/lmsampler/config"
	"github.com/probe-lab/lmsampler/models"
	"github.com/probe-lab/lmsampler/petsird"
)

func writeTestAcquisition(t *testing.T, promptCounts ...int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.bin")

	w, err := petsird.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteHeader(&models.Header{
		Scanner: models.ScannerInformation{ModelName: "TEST", NumberOfDetectors: 8},
	}))
	for i, n := range promptCounts {
		tb := &models.TimeBlock{ID: uint32(i + 1)}
		for j := 0; j < n; j++ {
			tb.PromptEvents = append(tb.PromptEvents, models.CoincidenceEvent{
				DetectorIDs: [2]uint32{uint32(j), uint32(j + 4)},
			})
		}
		require.NoError(t, w.WriteTimeBlocks(tb))
	}
	require.NoError(t, w.Close())
	return path
}

func readTestAcquisition(t *testing.T, r io.Reader) []*models.TimeBlock {
	t.Helper()
	reader, err := petsird.NewReader(r)
	require.NoError(t, err)
	_, err = reader.ReadHeader()
	require.NoError(t, err)

	var blocks []*models.TimeBlock
	for {
		tb, err := reader.ReadTimeBlock()
		if err == io.EOF {
			return blocks
		}
		require.NoError(t, err)
		blocks = append(blocks, tb)
	}
}

func readTestAcquisitionFile(t *testing.T, path string) []*models.TimeBlock {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return readTestAcquisition(t, bytes.NewReader(raw))
}

// withThinConfig swaps the global sampler configuration for the duration of
// the test
func withThinConfig(t *testing.T, cfg config.Sampler) {
	t.Helper()
	old := thinConfig
	thinConfig = &cfg
	t.Cleanup(func() { thinConfig = old })
}

func seed(s uint64) *uint64 {
	return &s
}

func Test_cmdThinAction_EventKeepAll(t *testing.T) {
	input := writeTestAcquisition(t, 2, 3, 1)
	output := filepath.Join(t.TempDir(), "output.bin")
	withThinConfig(t, config.Sampler{
		AcqFile:       input,
		OutputFile:    output,
		RetentionFrac: 1.0,
		Method:        config.SampleEvent.String(),
		Seed:          seed(5),
	})

	err := cmdThinAction(context.Background(), &cli.Command{})
	require.NoError(t, err)

	blocks := readTestAcquisitionFile(t, output)
	require.Len(t, blocks, 3)
	for i, n := range []int{2, 3, 1} {
		require.Equal(t, uint32(i+1), blocks[i].ID)
		require.Len(t, blocks[i].PromptEvents, n)
		require.False(t, blocks[i].HasDelayed)
	}
}

func Test_cmdThinAction_DropAllToStdout(t *testing.T) {
	input := writeTestAcquisition(t, 4, 4)
	withThinConfig(t, config.Sampler{
		AcqFile:       input,
		RetentionFrac: 0.0,
		Method:        config.SampleTimeBlock.String(),
	})

	var buf bytes.Buffer
	oldStdout := stdout
	stdout = &buf
	defer func() { stdout = oldStdout }()

	err := cmdThinAction(context.Background(), &cli.Command{})
	require.NoError(t, err)

	blocks := readTestAcquisition(t, &buf)
	require.Len(t, blocks, 1)
	require.Equal(t, uint32(0), blocks[0].ID)
	require.Empty(t, blocks[0].PromptEvents)
	require.False(t, blocks[0].HasDelayed)
}

func Test_cmdThinAction_EmptyAcquisition(t *testing.T) {
	input := writeTestAcquisition(t)
	output := filepath.Join(t.TempDir(), "output.bin")
	withThinConfig(t, config.Sampler{
		AcqFile:       input,
		OutputFile:    output,
		RetentionFrac: 0.5,
		Method:        config.SampleEvent.String(),
		Verbose:       1,
	})

	err := cmdThinAction(context.Background(), &cli.Command{})
	require.NoError(t, err)

	blocks := readTestAcquisitionFile(t, output)
	require.Len(t, blocks, 1)
	require.Equal(t, uint32(0), blocks[0].ID)
}

func Test_cmdThinAction_Deterministic(t *testing.T) {
	input := writeTestAcquisition(t, 40, 12, 0, 33, 7, 21)
	dir := t.TempDir()

	for _, method := range config.AvailableMethods {
		outputs := []string{
			filepath.Join(dir, method.String()+"-a.bin"),
			filepath.Join(dir, method.String()+"-b.bin"),
		}
		for _, output := range outputs {
			withThinConfig(t, config.Sampler{
				AcqFile:       input,
				OutputFile:    output,
				RetentionFrac: 0.4,
				Method:        method.String(),
				Seed:          seed(2024),
			})
			require.NoError(t, cmdThinAction(context.Background(), &cli.Command{}))
		}

		a, err := os.ReadFile(outputs[0])
		require.NoError(t, err)
		b, err := os.ReadFile(outputs[1])
		require.NoError(t, err)
		require.Equal(t, a, b, method.String())
	}
}

func Test_cmdThinAction_MissingInput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "output.bin")
	withThinConfig(t, config.Sampler{
		AcqFile:       filepath.Join(dir, "missing.bin"),
		OutputFile:    output,
		RetentionFrac: 0.5,
		Method:        config.SampleTimeBlock.String(),
	})

	err := cmdThinAction(context.Background(), &cli.Command{})
	require.Error(t, err)
	require.NoFileExists(t, output)
}

func Test_cmdThinAction_MalformedInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "garbage.bin")
	require.NoError(t, os.WriteFile(input, []byte("definitely not an acquisition"), 0o644))
	output := filepath.Join(dir, "output.bin")
	withThinConfig(t, config.Sampler{
		AcqFile:       input,
		OutputFile:    output,
		RetentionFrac: 0.5,
		Method:        config.SampleTimeBlock.String(),
	})

	err := cmdThinAction(context.Background(), &cli.Command{})
	require.ErrorIs(t, err, petsird.ErrBadMagic)
	require.NoFileExists(t, output)
}

func Test_cmdThinAction_InvalidConfig(t *testing.T) {
	input := writeTestAcquisition(t, 1)
	withThinConfig(t, config.Sampler{
		AcqFile:       input,
		RetentionFrac: 1.5,
		Method:        config.SampleTimeBlock.String(),
	})
	err := cmdThinAction(context.Background(), &cli.Command{})
	require.ErrorIs(t, err, config.ErrInvalidRetention)
}

func Test_cmdThinAction_StdoutConfirmation(t *testing.T) {
	input := writeTestAcquisition(t, 1, 1)
	withThinConfig(t, config.Sampler{
		AcqFile:       input,
		RetentionFrac: 1.0,
		Method:        config.SampleTimeBlock.String(),
		Verbose:       1,
	})

	var out, prompt bytes.Buffer
	oldStdout, oldIn, oldOut := stdout, promptIn, promptOut
	stdout, promptOut = &out, &prompt
	defer func() { stdout, promptIn, promptOut = oldStdout, oldIn, oldOut }()

	// confirmed
	promptIn = strings.NewReader("\n")
	require.NoError(t, cmdThinAction(context.Background(), &cli.Command{}))
	require.Contains(t, prompt.String(), "Press Enter to continue...")
	require.Len(t, readTestAcquisition(t, &out), 2)

	// no answer, nothing is written
	out.Reset()
	promptIn = strings.NewReader("")
	require.Error(t, cmdThinAction(context.Background(), &cli.Command{}))
	require.Zero(t, out.Len())
}

func Test_appRun(t *testing.T) {
	input := writeTestAcquisition(t, 5, 5, 5)
	output := filepath.Join(t.TempDir(), "output.bin")

	old := *thinConfig
	defer func() { *thinConfig = old }()

	args := []string{
		"lmsampler",
		"--acqFile", input,
		"-r", "1",
		"-m", "event",
		"-o", output,
		"-s", "42",
		"-v", "0",
		"--log.level", "warn",
	}
	require.NoError(t, app.Run(context.Background(), args))
	require.NotNil(t, thinConfig.Seed)
	require.Equal(t, uint64(42), *thinConfig.Seed)

	blocks := readTestAcquisitionFile(t, output)
	require.Len(t, blocks, 3)
	for _, tb := range blocks {
		require.Len(t, tb.PromptEvents, 5)
	}
}

func Test_cmdThinAction_SummaryLogLevel(t *testing.T) {
	hook := logtest.NewGlobal()
	oldLevel := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer func() {
		log.SetLevel(oldLevel)
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	}()

	input := writeTestAcquisition(t, 2, 3, 1)
	summary := "prompts: 6 kept out of 6 (100%)"

	for verbose, level := range map[int64]log.Level{0: log.DebugLevel, 1: log.InfoLevel} {
		hook.Reset()
		withThinConfig(t, config.Sampler{
			AcqFile:       input,
			OutputFile:    filepath.Join(t.TempDir(), "output.bin"),
			RetentionFrac: 1.0,
			Method:        config.SampleEvent.String(),
			Verbose:       verbose,
		})
		require.NoError(t, cmdThinAction(context.Background(), &cli.Command{}))

		var found *log.Entry
		for _, entry := range hook.AllEntries() {
			if entry.Message == summary {
				found = entry
			}
		}
		require.NotNil(t, found, "verbose %d", verbose)
		require.Equal(t, level, found.Level, "verbose %d", verbose)
	}
}

func Test_cmdThinAction_OutputIsInput(t *testing.T) {
	input := writeTestAcquisition(t, 3, 3)
	before, err := os.ReadFile(input)
	require.NoError(t, err)

	withThinConfig(t, config.Sampler{
		AcqFile:       input,
		OutputFile:    filepath.Join(filepath.Dir(input), ".", filepath.Base(input)),
		RetentionFrac: 0.5,
		Method:        config.SampleTimeBlock.String(),
	})
	err = cmdThinAction(context.Background(), &cli.Command{})
	require.ErrorIs(t, err, errOutputIsInput)

	after, err := os.ReadFile(input)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func Test_rootBeforeRejectsArguments(t *testing.T) {
	cmd := &cli.Command{
		Name:   "lmsampler",
		Before: rootBefore,
		Action: func(context.Context, *cli.Command) error { return nil },
	}
	err := cmd.Run(context.Background(), []string{"lmsampler", "input.bin"})
	require.ErrorContains(t, err, "unexpected arguments: input.bin")
}
