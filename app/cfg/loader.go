package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./civicboard.db" description:"Path to the SQLite database file"`

	// Application configuration
	Port           string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	OrgSources     string `long:"org-sources" env:"ORG_SOURCES" default:"./org_sources.txt" description:"File listing organization descriptor sources, one path or URL per line"`
	OrgName        string `long:"name" env:"ORG_NAME" description:"Update only the named organization (skips orphan pruning)"`
	UpdateInterval int    `long:"update-interval" env:"UPDATE_INTERVAL" default:"21600" description:"Seconds between reconciliation passes"`
	Once           bool   `long:"once" description:"Run a single reconciliation pass and exit"`

	// Upstream credentials
	GitHubToken string `long:"github-token" env:"GITHUB_TOKEN" description:"GitHub API token; unauthenticated access is heavily rate limited"`
	MeetupKey   string `long:"meetup-key" env:"MEETUP_KEY" description:"Meetup API key"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"civicboard/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:         raw.DBPath,
		Port:           raw.Port,
		OrgSources:     raw.OrgSources,
		OrgName:        raw.OrgName,
		UpdateInterval: raw.UpdateInterval,
		Once:           raw.Once,
		GitHubToken:    raw.GitHubToken,
		MeetupKey:      raw.MeetupKey,
		UserAgent:      raw.UserAgent,
		Timezone:       raw.Timezone,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
