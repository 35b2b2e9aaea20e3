package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/chase3718/lou-lights/config"
	"github.com/chase3718/lou-lights/engine"
	"github.com/chase3718/lou-lights/input"
	"github.com/chase3718/lou-lights/monitor"
	"github.com/chase3718/lou-lights/preview"
	"github.com/chase3718/lou-lights/render"
)

// errQuit ends the program when the user leaves the monitor.
var errQuit = errors.New("quit")

type options struct {
	config    string
	catalog   string
	serial    string
	baud      int
	udp       string
	midiPorts []string
	noMIDI    bool
	http      string
	monitor   bool
	logFile   string
	debug     bool
	dryRun    bool
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	var o options
	fs := pflag.NewFlagSet("lou-lights", pflag.ContinueOnError)
	fs.StringVarP(&o.config, "config", "c", "", "YAML settings file")
	fs.StringVar(&o.catalog, "catalog", "", `note catalog (.json or .yaml), or "builtin"`)
	fs.StringVar(&o.serial, "serial", "", "strip controller serial device")
	fs.IntVar(&o.baud, "baud", 0, "serial baud rate")
	fs.StringVar(&o.udp, "udp", "", `UDP listen address ("" disables)`)
	fs.StringArrayVar(&o.midiPorts, "midi-port", nil, "preferred MIDI input name pattern (repeatable)")
	fs.BoolVar(&o.noMIDI, "no-midi", false, "do not open MIDI inputs")
	fs.StringVar(&o.http, "http", "", "preview server address, e.g. localhost:8080")
	fs.BoolVar(&o.monitor, "monitor", false, "show the terminal monitor")
	fs.StringVar(&o.logFile, "log-file", "", "write logs to this file (default stderr)")
	fs.BoolVar(&o.debug, "debug", false, "enable debug logging (adds source location)")
	fs.BoolVar(&o.dryRun, "dry-run", false, "log lit notes instead of writing to the serial port")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if rest := fs.Args(); len(rest) != 0 {
		return nil, nil, fmt.Errorf("unexpected argument: %q", rest[0])
	}
	return &o, fs, nil
}

// apply overrides settings with the flags given on the command line.
func (o *options) apply(fs *pflag.FlagSet, s *config.Settings) {
	if fs.Changed("catalog") {
		s.Catalog = o.catalog
	}
	if fs.Changed("serial") {
		s.Serial.Device = o.serial
	}
	if fs.Changed("baud") {
		s.Serial.Baud = o.baud
	}
	if fs.Changed("udp") {
		s.UDP.Addr = o.udp
	}
	if fs.Changed("midi-port") {
		s.MIDI.Preferred = o.midiPorts
	}
	if o.noMIDI {
		s.MIDI.Enabled = false
	}
	if fs.Changed("http") {
		s.HTTP = o.http
	}
}

// initLogger configures the shared slog logger and calls slog.SetDefault so
// the stdlib log package also routes through the same handler.
func initLogger(debug bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func run(args []string) error {
	opts, fs, err := parseFlags(args)
	if err != nil {
		return err
	}
	settings := config.Default()
	if opts.config != "" {
		if settings, err = config.Load(opts.config); err != nil {
			return err
		}
	}
	opts.apply(fs, settings)
	if err := settings.Validate(); err != nil {
		return err
	}

	var logOut io.Writer = os.Stderr
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	} else if opts.monitor {
		// The monitor owns the terminal.
		logOut = io.Discard
	}
	logger := initLogger(opts.debug, logOut)
	logger.Info("lou-lights starting",
		"catalog", settings.Catalog,
		"serial", settings.Serial.Device,
		"baud", settings.Serial.Baud,
		"udp", settings.UDP.Addr,
		"midi", settings.MIDI.Enabled,
		"http", settings.HTTP,
		"dry_run", opts.dryRun,
		"debug", opts.debug,
	)

	catalog, err := settings.OpenCatalog()
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", "notes", catalog.Len())

	var (
		sinks  render.Multi
		frames *render.FrameSink
		hub    *preview.Hub
		mon    *monitor.Sink
	)
	if opts.dryRun || settings.Serial.Device == "" {
		sinks = append(sinks, render.NewLogSink(logger))
	} else {
		port, err := render.OpenSerial(settings.Serial.Device, settings.Serial.Baud, logger)
		if err != nil {
			return err
		}
		defer port.Close()
		frames = render.NewFrameSink(port, settings.Strips, logger)
		sinks = append(sinks, frames)
	}
	if settings.HTTP != "" {
		hub = preview.NewHub(settings.Strips)
		sinks = append(sinks, hub)
	}
	if opts.monitor {
		mon = monitor.NewSink()
		sinks = append(sinks, mon)
	}

	queue := engine.NewQueue(settings.Engine.QueueSize)
	eopts := settings.EngineOptions()
	eopts.Catalog = catalog
	eopts.Queue = queue
	eopts.Sink = sinks
	eopts.Logger = logger
	drv, err := engine.NewDriver(eopts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()

	g.Go(func() error { return drv.Run(ctx) })

	if settings.MIDI.Enabled {
		w, err := input.NewMIDIWatcher(settings.MIDI.MIDIConfig, queue, logger)
		if err != nil {
			// UDP can still drive the strips.
			logger.Error("midi: unavailable", "err", err)
		} else {
			defer w.Close()
			g.Go(func() error { return w.Run(ctx) })
		}
	}
	if settings.UDP.Addr != "" {
		l, err := input.ListenUDP(settings.UDP.Addr, queue, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return l.Serve(ctx) })
	}
	if hub != nil {
		srv := preview.NewServer(hub, logger)
		g.Go(func() error { return srv.ListenAndServe(ctx, settings.HTTP) })
	}
	if mon != nil {
		g.Go(func() error {
			if err := monitor.Run(ctx, mon, drv.Stats); err != nil {
				return err
			}
			return errQuit
		})
	}
	g.Go(func() error {
		logStats(ctx, logger, drv, frames, start)
		return ctx.Err()
	})

	err = g.Wait()
	if frames != nil {
		if berr := frames.Blank(); berr != nil {
			logger.Warn("render: blank on shutdown failed", "err", berr)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, errQuit) {
		logger.Info("lou-lights stopped", "uptime", formatUptime(time.Since(start)))
		return nil
	}
	return err
}

// exitCode reports err on w and returns the process status. It does not use
// the default logger, which discards output while the monitor owns the
// terminal.
func exitCode(err error, w io.Writer) int {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	slog.New(slog.NewTextHandler(w, nil)).Error("lou-lights", "err", err)
	return 1
}

func main() {
	os.Exit(exitCode(run(os.Args[1:]), os.Stderr))
}
