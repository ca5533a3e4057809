package util

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// BaseURLEnv overrides the site root when -base-url is not given.
const BaseURLEnv = "FIREDL_BASE_URL"

// DefaultBaseURL is the site root.
const DefaultBaseURL = "https://animefire.plus"

// Options holds everything parsed from the command line.
type Options struct {
	Debug      bool
	Version    bool
	Help       bool
	Quality    string
	OutputDir  string
	Conflict   string
	All        bool
	Select     bool
	Native     bool
	MaxRetries int
	LimitRate  int
	Pacing     string
	Delay      time.Duration
	From       int
	To         int
	NoProgress bool
	BaseURL    string
	Targets    []string
}

// Query joins the positional arguments into a search query.
func (o *Options) Query() string {
	return strings.TrimSpace(strings.Join(o.Targets, " "))
}

// InRange reports whether episode number n passes -from and -to. Zero bounds
// are open.
func (o *Options) InRange(n int) bool {
	return (o.From == 0 || n >= o.From) && (o.To == 0 || n <= o.To)
}

// HasRange reports whether -from or -to was given.
func (o *Options) HasRange() bool {
	return o.From > 0 || o.To > 0
}

// DefaultOutputDir is ~/Downloads/anime_fire, or ./anime_fire when the home
// directory is unknown.
func DefaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "anime_fire"
	}
	return filepath.Join(home, "Downloads", "anime_fire")
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string, output io.Writer) (*Options, error) {
	opts := &Options{}

	// Define all flags in one place
	fs := flag.NewFlagSet("firedl", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.BoolVar(&opts.Version, "version", false, "show version information")
	fs.BoolVar(&opts.Debug, "debug", false, "enable debug mode")
	fs.BoolVar(&opts.Help, "help", false, "show help message")
	fs.BoolVar(&opts.Help, "h", false, "show help message")
	fs.StringVar(&opts.Quality, "quality", "auto", "quality to download: auto, SD, HD, F-HD, FullHD or ask")
	fs.StringVar(&opts.OutputDir, "o", DefaultOutputDir(), "output directory")
	fs.StringVar(&opts.Conflict, "conflict", "uniquify", "what to do when the file exists: uniquify or overwrite")
	fs.BoolVar(&opts.All, "all", false, "download every episode of an anime page")
	fs.BoolVar(&opts.Select, "select", false, "pick episodes interactively")
	fs.BoolVar(&opts.Native, "native", false, "run as a native messaging host on stdin/stdout")
	fs.IntVar(&opts.MaxRetries, "max-retries", 5, "retries after HTTP 429 before giving up")
	fs.IntVar(&opts.LimitRate, "limit-rate", 0, "download bandwidth cap in bytes per second (0 = unlimited)")
	fs.StringVar(&opts.Pacing, "pacing", "stealth", "delay profile between episodes: stealth or page")
	fs.DurationVar(&opts.Delay, "delay", 0, "fixed wait between episodes, e.g. 20s (0 = use -pacing)")
	fs.IntVar(&opts.From, "from", 0, "first episode number to download from an anime page")
	fs.IntVar(&opts.To, "to", 0, "last episode number to download from an anime page")
	fs.BoolVar(&opts.NoProgress, "no-progress", false, "disable the progress bar")
	fs.StringVar(&opts.BaseURL, "base-url", "", "override the site root")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.Targets = fs.Args()

	if opts.BaseURL == "" {
		opts.BaseURL = os.Getenv(BaseURLEnv)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	if opts.MaxRetries < 0 {
		return nil, errors.Errorf("-max-retries must not be negative, got %d", opts.MaxRetries)
	}
	if opts.LimitRate < 0 {
		return nil, errors.Errorf("-limit-rate must not be negative, got %d", opts.LimitRate)
	}
	if opts.Delay < 0 {
		return nil, errors.Errorf("-delay must not be negative, got %v", opts.Delay)
	}
	if opts.From < 0 || opts.To < 0 {
		return nil, errors.New("-from and -to must not be negative")
	}
	if opts.From > 0 && opts.To > 0 && opts.From > opts.To {
		return nil, errors.Errorf("-from %d is after -to %d", opts.From, opts.To)
	}
	switch opts.Pacing {
	case "stealth", "page":
	default:
		return nil, errors.Errorf("unknown pacing %q (want stealth or page)", opts.Pacing)
	}

	return opts, nil
}
