package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/configdesk/configdesk/cmd/configdesk/commands"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	// The first interrupt cancels the context so serve can flush pending
	// edits; a second one restores default handling and kills the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	err := commands.Execute(ctx, Version, Commit, BuildDate)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}

// setupLogging configures the CLI's console logger. CONFIGDESK_LOG_LEVEL
// takes precedence over LOG_LEVEL; NO_COLOR disables ANSI output.
func setupLogging() {
	_, noColor := os.LookupEnv("NO_COLOR")
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})
	zerolog.SetGlobalLevel(logLevel(os.Getenv("CONFIGDESK_LOG_LEVEL"), os.Getenv("LOG_LEVEL")))
}

// logLevel returns the first parseable level among candidates, defaulting
// to info.
func logLevel(candidates ...string) zerolog.Level {
	for _, c := range candidates {
		c = strings.TrimSpace(strings.ToLower(c))
		if c == "" {
			continue
		}
		if lvl, err := zerolog.ParseLevel(c); err == nil && lvl != zerolog.NoLevel {
			return lvl
		}
	}
	return zerolog.InfoLevel
}
