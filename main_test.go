package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/chase3718/lou-lights/config"
	"github.com/chase3718/lou-lights/engine"
	"github.com/chase3718/lou-lights/render"
)

func TestFlagsOverrideSettings(t *testing.T) {
	opts, fs, err := parseFlags([]string{
		"--serial", "/dev/ttyUSB1",
		"--midi-port", "Clavinova", "--midi-port", "Roland",
		"--udp", "",
		"--http", "localhost:8080",
		"--no-midi",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	s := config.Default()
	opts.apply(fs, s)

	if s.Serial.Device != "/dev/ttyUSB1" || s.Serial.Baud != config.Default().Serial.Baud {
		t.Errorf("serial = %+v", s.Serial)
	}
	if !slices.Equal(s.MIDI.Preferred, []string{"Clavinova", "Roland"}) || s.MIDI.Enabled {
		t.Errorf("midi = %+v", s.MIDI)
	}
	if s.UDP.Addr != "" || s.HTTP != "localhost:8080" {
		t.Errorf("udp %q http %q", s.UDP.Addr, s.HTTP)
	}
	if s.Catalog != config.BuiltinCatalog {
		t.Errorf("unset flag changed catalog to %q", s.Catalog)
	}
}

func TestFlagsRejectArguments(t *testing.T) {
	if _, _, err := parseFlags([]string{"extra"}); err == nil {
		t.Fatalf("expected error for positional argument")
	}
	if _, _, err := parseFlags([]string{"--bogus"}); err == nil {
		t.Fatalf("expected error for unknown flag")
	}
}

func TestInitLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger := initLogger(false, &buf)
	logger.Debug("hidden")
	logger.Info("shown", "k", 1)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown k=1") {
		t.Fatalf("info logger output: %q", buf.String())
	}

	buf.Reset()
	initLogger(true, &buf).Debug("detail")
	if !strings.Contains(buf.String(), "detail") || !strings.Contains(buf.String(), "source=") {
		t.Fatalf("debug logger output: %q", buf.String())
	}
}

func TestStatsAttrs(t *testing.T) {
	frames := render.NewFrameSink(io.Discard, render.DefaultLayout(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	frames.Blank()
	attrs := statsAttrs(engine.Stats{Events: 1234567, Active: 3}, frames, 90*time.Second)
	line := fmt.Sprint(attrs...)
	for _, want := range []string{"1,234,567", "16 B"} {
		if !strings.Contains(line, want) {
			t.Errorf("stats %q missing %q", line, want)
		}
	}
	if formatUptime(90*time.Second) == "" {
		t.Errorf("empty uptime")
	}
}

func TestExitCodeReportsWhileMonitorDiscards(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	// Same logger run installs for --monitor without --log-file.
	initLogger(false, io.Discard)

	var stderr bytes.Buffer
	if code := exitCode(fmt.Errorf("catalog: %w", errors.New("open /missing.json")), &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "/missing.json") {
		t.Fatalf("error not reported: %q", stderr.String())
	}

	stderr.Reset()
	if exitCode(nil, &stderr) != 0 || exitCode(pflag.ErrHelp, &stderr) != 0 || stderr.Len() != 0 {
		t.Fatalf("clean exits wrote %q", stderr.String())
	}
}
