// Package tasks schedules reconciliation passes. Passes run strictly one at
// a time; organizations inside a pass are processed sequentially, so the
// only shared mutable state is the database.
package tasks

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/civicboard/civicboard/app/cfg"
	"github.com/civicboard/civicboard/app/database"
	"github.com/civicboard/civicboard/app/feed"
	"github.com/civicboard/civicboard/app/github"
	"github.com/civicboard/civicboard/app/meetup"
	"github.com/civicboard/civicboard/app/sources"
	"github.com/civicboard/civicboard/app/update"
)

type Runner struct {
	db          *database.DB
	httpClient  *http.Client
	interval    time.Duration
	sourcesPath string
	nameFilter  string
	githubToken string
	meetupKey   string
	userAgent   string
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewRunner(db *database.DB, httpClient *http.Client) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	c := cfg.Get()

	return &Runner{
		db:          db,
		httpClient:  httpClient,
		interval:    time.Duration(c.UpdateInterval) * time.Second,
		sourcesPath: c.OrgSources,
		nameFilter:  c.OrgName,
		githubToken: c.GitHubToken,
		meetupKey:   c.MeetupKey,
		userAgent:   c.UserAgent,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the periodic loop: one pass immediately, then one per
// interval. A pass already in flight is never overlapped; a failed pass is
// logged and the loop keeps going.
func (r *Runner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		r.runPass()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.runPass()
			}
		}
	}()
}

func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) runPass() {
	started := time.Now()
	if err := r.RunOnce(); err != nil {
		slog.Error("Reconciliation pass aborted", "error", err, "duration", time.Since(started).String())
		return
	}
	slog.Info("Reconciliation pass finished", "duration", time.Since(started).String())
}

// RunOnce executes a single reconciliation pass with a fresh code-hosting
// client, so throttle state never leaks from one pass into the next.
func (r *Runner) RunOnce() error {
	sink := update.NewErrorSink(r.db)
	githubClient := github.NewClient(r.httpClient, "", r.githubToken, r.userAgent, sink)

	driver := update.NewDriver(
		r.db,
		sources.NewReader(r.httpClient, r.userAgent),
		feed.NewReader(r.httpClient, r.userAgent),
		meetup.NewClient(r.httpClient, "", r.meetupKey, r.userAgent),
		githubClient,
		sink,
		r.nameFilter,
	)
	return driver.Run(r.sourcesPath)
}
