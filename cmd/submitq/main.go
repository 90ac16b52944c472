// Package main implements the submitq daemon: an offline-durable product
// submission queue that drains itself when the endpoint becomes reachable.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cybertec-postgresql/submitq/internal/api"
	"github.com/cybertec-postgresql/submitq/internal/connectivity"
	"github.com/cybertec-postgresql/submitq/internal/log"
	"github.com/cybertec-postgresql/submitq/internal/queue"
	"github.com/cybertec-postgresql/submitq/internal/settings"
	"github.com/cybertec-postgresql/submitq/internal/submission"
	"github.com/cybertec-postgresql/submitq/internal/sync"
)

// Config holds the application configuration
type Config struct {
	Store         string `short:"s" env:"SUBMITQ_STORE" long:"store" description:"Settings store DSN: file://dir, sqlite://path, postgres://..., etcd://..., memory://" default:"file://./data"`
	Endpoint      string `short:"e" env:"SUBMITQ_ENDPOINT" long:"endpoint" description:"Product submission endpoint" default:"https://app.getswipe.in/api/public/add"`
	SubmitTimeout string `env:"SUBMITQ_SUBMIT_TIMEOUT" long:"submit-timeout" description:"Timeout for one submission" default:"30s"`
	ProbeAddress  string `env:"SUBMITQ_PROBE_ADDRESS" long:"probe-address" description:"host:port dialed to detect connectivity (default: endpoint host)"`
	ProbeInterval string `env:"SUBMITQ_PROBE_INTERVAL" long:"probe-interval" description:"Interval between connectivity probes" default:"5s"`
	ProbeTimeout  string `env:"SUBMITQ_PROBE_TIMEOUT" long:"probe-timeout" description:"Timeout for one connectivity probe" default:"3s"`
	Listen        string `short:"L" env:"SUBMITQ_LISTEN" long:"listen" description:"Address of the local API" default:":8080"`
	LogLevel      string `short:"l" env:"SUBMITQ_LOG_LEVEL" long:"log-level" description:"Log level: debug|info|warn|error" default:"info"`
	LogJSON       bool   `env:"SUBMITQ_LOG_JSON" long:"log-json" description:"Emit logs as JSON"`
	Version       bool   `short:"v" long:"version" description:"Show version information"`
	Help          bool
}

// durations are the parsed forms of the duration flags
type durations struct {
	submitTimeout time.Duration
	probeInterval time.Duration
	probeTimeout  time.Duration
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ParseCLI parses command-line arguments and returns the configuration
func ParseCLI(args []string) (cmdOpts *Config, err error) {
	cmdOpts = new(Config)
	parser := flags.NewParser(cmdOpts, flags.HelpFlag)
	nonParsedArgs, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			cmdOpts.Help = true
		}
		if !flags.WroteHelp(err) {
			parser.WriteHelp(os.Stdout)
		}
		return cmdOpts, err
	}
	if len(nonParsedArgs) > 0 {
		return cmdOpts, fmt.Errorf("unknown argument(s): %v", nonParsedArgs)
	}
	return
}

func (c *Config) durations() (d durations, err error) {
	for _, f := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"submit-timeout", c.SubmitTimeout, &d.submitTimeout},
		{"probe-interval", c.ProbeInterval, &d.probeInterval},
		{"probe-timeout", c.ProbeTimeout, &d.probeTimeout},
	} {
		v, err := time.ParseDuration(f.value)
		if err != nil {
			return d, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		if v <= 0 {
			return d, fmt.Errorf("invalid %s: must be positive", f.name)
		}
		*f.dst = v
	}
	return d, nil
}

// probeAddress is the configured address or the endpoint's host:port
func (c *Config) probeAddress() (string, error) {
	if c.ProbeAddress != "" {
		return c.ProbeAddress, nil
	}
	return connectivity.AddressFromURL(c.Endpoint)
}

// ShowVersion prints version information and exits
func ShowVersion() {
	fmt.Printf("submitq version %s\n", version)
	if commit != "none" && commit != "" {
		fmt.Printf("commit: %s\n", commit)
	}
	if date != "unknown" && date != "" {
		fmt.Printf("built: %s\n", date)
	}
}

// SetupLogging configures the logging system with structured output
func SetupLogging(logLevel string, json bool) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(log.NewFormatter(json))

	logrus.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"pid":     os.Getpid(),
	}).Info("submitq logging initialized")

	return nil
}

// SetupCloseHandler creates a 'listener' on a new goroutine which will notify the
// program if it receives an interrupt from the OS. We then handle this by calling
// our clean up procedure and exiting the program.
func SetupCloseHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logrus.Debug("SetupCloseHandler received an interrupt from OS. Closing session...")
		cancel()
	}()
}

// run wires all components and blocks until ctx is cancelled or one of them
// fails
func run(ctx context.Context, config *Config) error {
	d, err := config.durations()
	if err != nil {
		return err
	}
	probeAddr, err := config.probeAddress()
	if err != nil {
		return err
	}

	backend, err := settings.Open(ctx, config.Store)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer backend.Close()

	store := queue.NewStore(backend)
	monitor := connectivity.New()
	client := submission.NewClient(config.Endpoint, d.submitTimeout)
	coord := sync.New(store, client, monitor)
	cancelSub := monitor.OnReachable(coord.RequestDrain)
	defer cancelSub()

	prober := connectivity.NewProber(monitor, probeAddr, d.probeInterval, d.probeTimeout)
	server := api.New(config.Listen, coord, monitor)

	logrus.WithFields(logrus.Fields{
		"store":    config.Store,
		"endpoint": client.Endpoint(),
		"pending":  store.Len(ctx),
	}).Info("submitq started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(ctx) })
	g.Go(func() error { return prober.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	// Quick check for version flags before full parsing
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-v" {
			ShowVersion()
			os.Exit(0)
		}
	}

	config, err := ParseCLI(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}

	if err := SetupLogging(config.LogLevel, config.LogJSON); err != nil {
		logrus.WithError(err).Fatal("Failed to setup logging")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	SetupCloseHandler(cancel)

	if err := run(ctx, config); err != nil {
		logrus.WithError(err).Fatal("submitq failed")
	}

	logrus.Info("Graceful shutdown completed")
}
