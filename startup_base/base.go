package startup_base

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	BuildPackage       string
	BuildGitHash       string
	BuildVersion       string
	BuildUnixTimestamp string
)

type BaseOptions struct {
	Logfile       string `long:"log-file" description:"Write logs to a different file. Defaults to stderr."`
	ForceColor    bool   `long:"log-color" description:"Forces colored output even on non TTYs."`
	JSONFormatter bool   `long:"log-json" description:"Log using the logrus json formatter."`

	Verbose bool `long:"verbose" description:"Show verbose logging output."`
	Version bool `long:"version" description:"Prints the build information about this application if available."`
}

func (opts *BaseOptions) Initialize() {
	if opts.Version {
		fmt.Printf("%s (%s)\n", path.Base(os.Args[0]), BuildPackage)
		fmt.Printf("  version: %s\n", BuildVersion)
		fmt.Printf("  git hash: %s\n", BuildGitHash)
		fmt.Printf("  build time: %s\n", BuildUnixTimestamp)
		os.Exit(0)
	}

	writer, err := OpenWriter(opts.Logfile)
	FatalOnError(err, "Failed to open log file %s", opts.Logfile)

	if writer == nil {
		// discard logging
		logrus.SetOutput(io.Discard)
	} else {
		logrus.SetOutput(writer)
	}

	logrus.SetFormatter(opts.formatter(writer))

	if opts.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
		log.Debug("Enabled verbose logging")
	}
}

func (opts *BaseOptions) formatter(writer *os.File) logrus.Formatter {
	if opts.JSONFormatter {
		return &logrus.JSONFormatter{}
	}

	color := opts.ForceColor || (writer != nil && isatty.IsTerminal(writer.Fd()))

	return &prefixed.TextFormatter{
		ForceColors:     color,
		DisableColors:   !color,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	}
}
