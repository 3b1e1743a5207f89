package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	"github.com/sqweek/dialog"

	trackerloader "github.com/QEStudios/TrackerLoader"
	"github.com/QEStudios/TrackerLoader/midiexport"
	"github.com/QEStudios/TrackerLoader/parser"
	"github.com/QEStudios/TrackerLoader/song"
)

var logger *log.Logger

type config struct {
	headerOnly  bool
	noSamples   bool
	noPatterns  bool
	pattern     int
	output      string
	midiPath    string
	formatTag   string
	listFormats bool
	verbose     bool
}

func main() {
	logger = log.New(os.Stderr, "", log.Ldate|log.Ltime)

	var cfg config
	pflag.BoolVar(&cfg.headerOnly, "header-only", false, "check the file structure without storing patterns or sample data")
	pflag.BoolVar(&cfg.noSamples, "no-samples", false, "skip sample data")
	pflag.BoolVar(&cfg.noPatterns, "no-patterns", false, "skip pattern data")
	pflag.IntVarP(&cfg.pattern, "pattern", "p", -1, "print the contents of pattern N")
	pflag.StringVarP(&cfg.output, "output", "o", "text", "output style: text, yaml or dump")
	pflag.StringVar(&cfg.midiPath, "midi", "", "export the song to a MIDI file")
	pflag.StringVarP(&cfg.formatTag, "format", "f", "", "load as this format instead of detecting it")
	pflag.BoolVarP(&cfg.listFormats, "list-formats", "l", false, "list supported formats and exit")
	pflag.BoolVarP(&cfg.verbose, "verbose", "v", false, "log loader progress")
	pflag.Parse()

	if cfg.listFormats {
		listFormats(os.Stdout)
		return
	}
	switch cfg.output {
	case "text", "yaml", "dump":
	default:
		logger.Fatalf("unknown output style %q", cfg.output)
	}

	// Get the current working directory.
	cwd, err := os.Getwd()
	if err != nil {
		logger.Fatalf("failed to get current working directory: %v", err)
	}

	paths := pflag.Args()
	if len(paths) == 0 {
		path, err := choosePath(cwd)
		if err != nil {
			if errors.Is(err, dialog.ErrCancelled) {
				logger.Printf("User cancelled the file dialog")
				os.Exit(1)
			}
			logger.Fatalf("failed to determine file path: %v", err)
		}
		paths = []string{path}
	}

	failed := false
	for _, path := range paths {
		if err := run(os.Stdout, path, &cfg); err != nil {
			logger.Printf("%s: %v", path, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func (cfg *config) options() parser.Options {
	opts := parser.DefaultOptions()
	if cfg.verbose {
		opts.Logger = logger
	}
	switch {
	case cfg.headerOnly:
		opts.Flags = parser.OnlyVerifyHeader
	default:
		if cfg.noSamples {
			opts.Flags &^= parser.LoadSampleData
		}
		if cfg.noPatterns {
			opts.Flags &^= parser.LoadPatternData
		}
	}
	return opts
}

func run(w io.Writer, path string, cfg *config) error {
	if err := validatePath(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}

	var res *parser.Result
	if cfg.formatTag != "" {
		f, ok := trackerloader.FormatByTag(cfg.formatTag)
		if !ok {
			return fmt.Errorf("unknown format %q, see --list-formats", cfg.formatTag)
		}
		res, err = parser.LoadAs(f, data, cfg.options())
	} else {
		res, err = trackerloader.Load(data, cfg.options())
	}
	if err != nil {
		return err
	}

	switch cfg.output {
	case "yaml":
		err = writeYAML(w, newSummary(path, res))
	case "dump":
		spew.Fdump(w, res.Song)
	default:
		err = writeText(w, newSummary(path, res))
	}
	if err != nil {
		return err
	}

	if cfg.pattern >= 0 {
		if res.Song.Pattern(cfg.pattern) == nil {
			return fmt.Errorf("pattern %d has no data", cfg.pattern)
		}
		fmt.Fprintf(w, "\nPattern %d:\n%s", cfg.pattern, res.Song.FormatPattern(cfg.pattern))
	}

	if cfg.midiPath != "" {
		if cfg.headerOnly || cfg.noPatterns {
			return fmt.Errorf("MIDI export needs pattern data")
		}
		if err := writeMIDI(cfg.midiPath, res.Song); err != nil {
			return err
		}
		logger.Printf("Wrote %s", cfg.midiPath)
	}
	return nil
}

// writeMIDI exports s to path. A failed export or close removes the partial file.
func writeMIDI(path string, s *song.Song) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating MIDI file: %w", err)
	}
	if err := midiexport.Write(out, s, logger); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("error closing MIDI file: %w", err)
	}
	return nil
}

func listFormats(w io.Writer) {
	formats := trackerloader.DefaultFormats()
	sort.Slice(formats, func(i, j int) bool { return formats[i].Tag < formats[j].Tag })
	for _, f := range formats {
		fmt.Fprintf(w, "%-8s %-24s %s\n", f.Tag, f.Name, strings.Join(f.Extensions, ", "))
	}
}

// choosePath opens a file dialog filtered to known module extensions.
func choosePath(cwd string) (string, error) {
	var exts []string
	for _, f := range trackerloader.DefaultFormats() {
		exts = append(exts, f.Extensions...)
	}
	path, err := dialog.
		File().
		Title("Open tracker module").
		Filter("Tracker modules", exts...).
		Filter("All files", "*").
		SetStartDir(cwd).
		Load()
	if err != nil {
		// Propagate the error. Caller will check for dialog.ErrCancelled.
		return "", err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot get absolute path: %w", err)
	}

	// Check for empty path just in case.
	if path == "" {
		return "", dialog.ErrCancelled
	}
	if err := validatePath(absPath); err != nil {
		return "", fmt.Errorf("dialog selection invalid: %w", err)
	}
	return absPath, nil
}

// validatePath checks that p names a regular file.
func validatePath(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("cannot stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", p)
	}
	return nil
}
