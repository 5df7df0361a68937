package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/squadwarden/warden/internal/config"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "warden"
)

const usage = `usage: warden [flags] [run | replay <log file> | version]

Commands:
  run       follow the live server log and enforce rules (default)
  replay    feed a finished log through the rules and print the commands
            that would have been sent
  version   print the build version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "warden:", err)
		os.Exit(1)
	}
}

// newFlagSet declares the command line flags. Every flag except --config
// overrides the config key it is bound to.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage, "\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.String("config", ".", "directory holding "+config.FileName)
	fs.String("log-file", "", "server log file to follow")
	fs.Bool("from-start", false, "read the log from the beginning instead of the end")
	fs.Bool("dry-run", false, "log server commands instead of sending them")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("logs-dir", "", "directory for warden's own log files")
	fs.String("round", "", "replay: JSON file seeding the round layout and player list")
	fs.Duration("settle", defaultSettle, "replay: time to let pending escalations run after the last line")
	return fs
}

var flagKeys = map[string]string{
	"log-file":   "server.logPath",
	"from-start": "server.fromStart",
	"dry-run":    "server.dryRun",
	"log-level":  "logLevel",
	"logs-dir":   "logsDir",
}

// loadConfig reads the config file and binds the flags over it. A missing
// config file leaves the defaults in place.
func loadConfig(fs *pflag.FlagSet) error {
	dir, err := fs.GetString("config")
	if err != nil {
		return err
	}
	if err := config.Load(dir); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet()
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	command := fs.Arg(0)
	if command == "" {
		command = "run"
	}

	switch command {
	case "version":
		fmt.Fprintf(out, "%s %s (built %s)\n", AppName, CurrentVersion, BuildDate)
		return nil
	case "run":
		if err := loadConfig(fs); err != nil {
			return err
		}
		return runLive(ctx)
	case "replay":
		if fs.NArg() < 2 {
			return errors.New("replay needs a log file")
		}
		if err := loadConfig(fs); err != nil {
			return err
		}
		seed, _ := fs.GetString("round")
		settle, _ := fs.GetDuration("settle")
		return runReplay(ctx, replayOptions{
			LogFile:  fs.Arg(1),
			SeedFile: seed,
			Settle:   settle,
		}, out)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}
