// Package config loads the settings of the client from the environment and
// from a .env file in the profile directory.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-simpler.org/env"

	"rocktree.lol/appdata"
	"rocktree.lol/chk"
	"rocktree.lol/config/keyvalue"
	"rocktree.lol/errorf"
	dotenv "rocktree.lol/env"
)

// C is the configuration of the client. Process environment variables take
// precedence over the .env file in the profile directory.
type C struct {
	AppName        string        `env:"APP_NAME" default:"rocktree"`
	Profile        string        `env:"PROFILE" usage:"directory holding the .env file and the disk cache (default is APP_NAME under the user cache directory)"`
	BaseURL        string        `env:"BASE_URL" default:"https://kh.google.com/rt/earth/" usage:"base URL of the planetoid endpoint"`
	LogLevel       string        `env:"LOG_LEVEL" default:"info" usage:"debug level: fatal error warn info debug trace"`
	DbLogLevel     string        `env:"DB_LOG_LEVEL" default:"warn" usage:"debug level: fatal error warn info debug trace"`
	MaxConcurrent  int           `env:"MAX_CONCURRENT" default:"8" usage:"maximum number of requests in flight"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" default:"4" usage:"attempts at a fetch before it is failed"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" default:"10s" usage:"time limit of a single request"`
	BackoffInitial time.Duration `env:"BACKOFF_INITIAL" default:"250ms" usage:"first delay between attempts"`
	BackoffMax     time.Duration `env:"BACKOFF_MAX" default:"10s" usage:"largest delay between attempts"`
	RetryCooldown  time.Duration `env:"RETRY_COOLDOWN" default:"30s" usage:"time before a failed fetch may be requested again"`
	CacheBudget    int64         `env:"CACHE_BUDGET" default:"512000000" usage:"bytes of decoded data kept in memory"`
	DiskCache      bool          `env:"DISK_CACHE" default:"true" usage:"keep fetched payloads in a database in the profile directory"`
	DBSizeLimit    int64         `env:"DB_SIZE_LIMIT" default:"0" usage:"bytes of payloads the disk cache is pruned back under, 0 means unlimited"`
	GCFrequency    time.Duration `env:"GC_FREQUENCY" default:"1h" usage:"interval of disk cache garbage collection"`
	TextureFormats []string      `env:"TEXTURE_FORMATS" default:"crn_dxt1,jpg" usage:"texture formats in order of preference"`
	Pprof          bool          `env:"PPROF" default:"false" usage:"enable pprof on 127.0.0.1:6060"`
}

var opts = &env.Options{SliceSep: ","}

// New loads the configuration from the process environment.
func New() (cfg *C, err error) { return Load(dotenv.FromOS()) }

// Load reads the configuration from the variables of proc, then reads the
// .env file of the profile they name and loads again with proc laid over it.
func Load(proc dotenv.Env) (cfg *C, err error) {
	cfg = &C{}
	if err = env.Load(cfg, &env.Options{Source: proc, SliceSep: opts.SliceSep}); chk.E(err) {
		return
	}
	if cfg.Profile == "" {
		cfg.Profile = appdata.Dir(cfg.AppName)
	}
	envPath := filepath.Join(cfg.Profile, ".env")
	if _, err = os.Stat(envPath); err != nil {
		return cfg, nil
	}
	var file dotenv.Env
	if file, err = dotenv.GetEnv(envPath); chk.E(err) {
		err = errorf.E("reading %s: %w", envPath, err)
		return
	}
	profile := cfg.Profile
	cfg = &C{}
	if err = env.Load(cfg, &env.Options{Source: file.Over(proc), SliceSep: opts.SliceSep}); chk.E(err) {
		return
	}
	if cfg.Profile == "" {
		cfg.Profile = profile
	}
	return
}

// DataDir is where the disk cache is kept.
func (cfg *C) DataDir() string { return filepath.Join(cfg.Profile, "db") }

// HelpRequested returns true if any of the common types of help invocation are
// found as the first command line parameter/flag.
func HelpRequested() (help bool) {
	if len(os.Args) > 1 {
		switch strings.ToLower(os.Args[1]) {
		case "help", "-h", "--h", "-help", "--help", "?":
			help = true
		}
	}
	return
}

// GetEnv returns true if the first command line parameter asks for the
// configuration to be printed as an env file.
func GetEnv() (requested bool) {
	if len(os.Args) > 1 {
		switch strings.ToLower(os.Args[1]) {
		case "env":
			requested = true
		}
	}
	return
}

// PrintEnv writes the configuration as a shell script of exports.
func PrintEnv(cfg *C, printer io.Writer) { keyvalue.PrintEnv(*cfg, printer) }

// PrintHelp outputs a help text listing the configuration options and default
// values to a provided io.Writer (usually os.Stderr or os.Stdout).
func PrintHelp(cfg *C, printer io.Writer) {
	_, _ = fmt.Fprintf(printer,
		"Environment variables that configure %s:\n\n", cfg.AppName)
	env.Usage(cfg, printer, opts)
	_, _ = fmt.Fprintf(printer,
		"\nCLI parameter 'help' also prints this information\n"+
			"\n.env file found at the PROFILE path will be automatically "+
			"loaded for configuration.\nenvironment overrides it and "+
			"you can also edit the file to set configuration options\n\n"+
			"use the parameter 'env' to print out the current configuration to the terminal\n\n"+
			"set the environment using\n\n\t%s env>%s/.env\n\n", os.Args[0], cfg.Profile)
}
