package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-ticket-client/internal/config"
	"github.com/jrsteele09/go-ticket-client/internal/telemetry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c.GetLogLevel())

	if len(args) == 0 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		displayAppname(c.GetAppName())
		printUsage()
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	shutdownTelemetry := telemetry.Setup(c.GetAppName())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	ctx := context.Background()
	a, err := newApp(ctx, c, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd(ctx, a, args[1:])
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Usage:
  ticketctl <command> [flags]

Session:
  login                     sign in through the browser
  logout                    end the session
  whoami                    show the signed in user and roles
  watch [--metrics-addr]    keep the session renewed and serve /metrics

Tickets:
  tickets list [--status --priority --search --page --size]
  tickets get|close|reopen|messages|attachments <id>
  tickets mine | assigned | stats
  tickets create --title --description [--type --priority]
  tickets update <id> [--title --description --status --priority]
  tickets assign <id> (--team TEAM | --user USER_ID)
  tickets comment <id> <text>
  tickets uncomment <id> <message-id>
  tickets attach <id> <file>
  tickets download <id> <attachment-id> [--out FILE]
  tickets detach <id> <attachment-id>
  dashboard

Users:
  users me | list [--role --status] | technicians | stats
  users get <id> | search <username>
  users update-me [--first-name --last-name --email --phone --company --department]
  users create --username --email [--first-name --last-name --role]
  users set-role <id> <role> | set-status <id> <status>
  users activate|deactivate <id>

Sync:
  sync ensure | exists | token-info | user-info | debug

Environment:
  TICKET_API_URL, KEYCLOAK_URL, KEYCLOAK_REALM, KEYCLOAK_CLIENT_ID,
  KEYCLOAK_CLIENT_SECRET, REDIS_URL, LOG_LEVEL
`)
}
