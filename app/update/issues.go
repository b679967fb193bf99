package update

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/civicboard/civicboard/app/database"
	"github.com/civicboard/civicboard/app/github"
)

// IssueSyncer reconciles a project's issues and labels with the code host.
type IssueSyncer struct {
	client   *github.Client
	projects database.ProjectRepository
	issues   database.IssueRepository
}

func NewIssueSyncer(client *github.Client, projects database.ProjectRepository, issues database.IssueRepository) *IssueSyncer {
	return &IssueSyncer{client: client, projects: projects, issues: issues}
}

// Sync runs one mark-fetch-upsert cycle for a project. Projects without a
// repository on the code host are left alone. Errors are pass-fatal.
func (s *IssueSyncer) Sync(project *database.Project) error {
	path, isRepo := github.RepoPath(project.CodeURL)
	if !isRepo {
		return nil
	}

	if err := s.issues.MarkNotKeptForProject(project.ID); err != nil {
		return err
	}

	if s.client.Throttled() {
		return s.issues.MarkKeptForProject(project.ID)
	}

	result, err := s.client.Issues(path, project.LastUpdatedIssues)
	if err != nil {
		return err
	}

	switch {
	case result.StatusCode == http.StatusNotModified:
		// Nothing changed upstream; flip every issue back to kept in
		// one statement instead of touching rows individually.
		return s.issues.MarkKeptForProject(project.ID)

	case result.StatusCode == http.StatusForbidden && s.client.Throttled():
		return s.issues.MarkKeptForProject(project.ID)

	case result.StatusCode == http.StatusNotFound:
		slog.Info("issue listing gone", "code_url", project.CodeURL)
		return s.issues.MarkKeptForProject(project.ID)

	case result.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d fetching issues for %s", result.StatusCode, path)
	}

	if err := s.projects.UpdateIssuesToken(project.ID, result.ETag); err != nil {
		return err
	}

	for _, upstream := range result.Issues {
		// The listing endpoint mixes issues and pull requests.
		if strings.Contains(upstream.HTMLURL, "/pull/") {
			continue
		}

		issueID, err := s.issues.Upsert(&database.Issue{
			Title:     upstream.Title,
			HTMLURL:   upstream.HTMLURL,
			Body:      upstream.Body,
			Keep:      true,
			ProjectID: project.ID,
		})
		if err != nil {
			return err
		}

		if err := s.syncLabels(issueID, upstream.Labels); err != nil {
			return err
		}
	}
	return nil
}

// syncLabels replaces an issue's label set by diffing names: labels present
// upstream but not stored are added, stored labels gone upstream are
// removed.
func (s *IssueSyncer) syncLabels(issueID int64, upstream []github.Label) error {
	stored, err := s.issues.LabelsForIssue(issueID)
	if err != nil {
		return err
	}

	storedNames := make(map[string]bool, len(stored))
	for _, label := range stored {
		storedNames[label.Name] = true
	}

	upstreamNames := make(map[string]bool, len(upstream))
	for _, label := range upstream {
		upstreamNames[label.Name] = true
		if storedNames[label.Name] {
			continue
		}
		err := s.issues.AddLabel(&database.Label{
			Name:    label.Name,
			Color:   label.Color,
			URL:     label.URL,
			IssueID: issueID,
		})
		if err != nil {
			return err
		}
	}

	for _, label := range stored {
		if !upstreamNames[label.Name] {
			if err := s.issues.DeleteLabel(issueID, label.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
