package cli

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/codeninja55/go-jpip/cmd/jpipctl/internal/build"
	"github.com/codeninja55/go-jpip/cmd/jpipctl/internal/commands"
	"github.com/codeninja55/go-jpip/cmd/jpipctl/internal/config"
)

const (
	appName        = "jpipctl"
	appDescription = "JPIP image index and window-of-interest CLI for go-jpip"
)

// CLI represents the root command structure.
type CLI struct {
	config.GlobalConfig

	Index   commands.IndexCmd   `cmd:"" name:"index" help:"Parse a JP2/JPX/J2C image and print its codestream index"`
	Request commands.RequestCmd `cmd:"" name:"request" help:"Issue one JPIP window-of-interest request against an image"`
}

// Run executes the jpipctl CLI with the provided build info.
func Run(version, commit, date string) error {
	build.SetBuildInfo(version, commit, date)

	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name(appName),
		kong.Description(appDescription),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
			"commit":  commit,
			"date":    date,
		},
	)

	logger := setupLogger(&cli.GlobalConfig)

	logger.Debug("jpipctl CLI starting",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := ctx.Run(&cli.GlobalConfig); err != nil {
		logger.Error("command failed", "error", err)
		return err
	}

	return nil
}

// setupLogger configures the global logger based on config.
func setupLogger(cfg *config.GlobalConfig) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})

	switch cfg.LogLevel {
	case "trace":
		logger.SetLevel(log.DebugLevel) // log package doesn't have trace, use debug
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	case "fatal":
		logger.SetLevel(log.FatalLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if !cfg.Pretty {
		logger.SetFormatter(log.JSONFormatter)
	}

	log.SetDefault(logger)
	return logger
}

// ParseArgs is a convenience function for testing: it parses arguments and
// returns the CLI struct and Kong context without running a command.
func ParseArgs(args []string, version, commit, date string) (*CLI, *kong.Context, error) {
	build.SetBuildInfo(version, commit, date)

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name(appName),
		kong.Description(appDescription),
		kong.Vars{
			"version": version,
			"commit":  commit,
			"date":    date,
		},
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create parser: %w", err)
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	return cli, ctx, nil
}
