// Command pdfgen composes PDF files and inspects them.
//
//	pdfgen build -out report.pdf -title "Report" -text "Hello" -qr "https://example.com"
//	pdfgen inspect -text -metadata report.pdf
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/wudi/pdfcompose/observability"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "build":
		err = runBuild(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "pdfgen: unknown command %q\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "pdfgen %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: pdfgen <command> [flags]\n\nCommands:\n")
	fmt.Fprintf(w, "  build    compose a PDF from text, markup, barcodes and images\n")
	fmt.Fprintf(w, "  inspect  print metadata, outline, fonts and text of a PDF\n")
}

// logFlags are shared by every subcommand.
type logFlags struct {
	format  string
	verbose bool
}

func (l *logFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&l.format, "log-format", "text", "Log format: text or json")
	fs.BoolVar(&l.verbose, "v", false, "Enable debug logging")
}

func (l *logFlags) logger() (observability.Logger, error) {
	level := slog.LevelWarn
	if l.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch l.format {
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", l.format)
	}
	return observability.NewSlogLogger(slog.New(h)), nil
}
