package database

import (
	"database/sql"
	"fmt"
)

var _ IssueRepository = (*IssRepo)(nil)

// IssRepo handles database operations for issues and their labels
type IssRepo struct {
	db Querier
}

func NewIssueRepository(db Querier) *IssRepo {
	return &IssRepo{db: db}
}

func (r *IssRepo) GetByNaturalKey(htmlURL string, projectID int64) (*Issue, error) {
	var issue Issue
	err := r.db.QueryRow(`
		SELECT id, COALESCE(title, ''), html_url, COALESCE(body, ''), keep, project_id
		FROM issues
		WHERE html_url = ? AND project_id = ?
	`, htmlURL, projectID).Scan(
		&issue.ID, &issue.Title, &issue.HTMLURL, &issue.Body, &issue.Keep, &issue.ProjectID,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	return &issue, nil
}

func (r *IssRepo) ForProject(projectID int64) ([]Issue, error) {
	rows, err := r.db.Query(`
		SELECT id, COALESCE(title, ''), html_url, COALESCE(body, ''), keep, project_id
		FROM issues
		WHERE project_id = ?
		ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var issue Issue
		err := rows.Scan(&issue.ID, &issue.Title, &issue.HTMLURL, &issue.Body, &issue.Keep, &issue.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue row: %w", err)
		}
		issues = append(issues, issue)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating issue rows: %w", err)
	}

	return issues, nil
}

// Upsert inserts or updates an issue by (html_url, project_id), sets keep=1
// and returns the row id. Labels are managed separately.
func (r *IssRepo) Upsert(issue *Issue) (int64, error) {
	existing, err := r.GetByNaturalKey(issue.HTMLURL, issue.ProjectID)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing issue: %w", err)
	}

	if existing == nil {
		result, err := r.db.Exec(`
			INSERT INTO issues (title, html_url, body, keep, project_id)
			VALUES (?, ?, ?, 1, ?)
		`, issue.Title, issue.HTMLURL, issue.Body, issue.ProjectID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert issue: %w", err)
		}
		return result.LastInsertId()
	}

	_, err = r.db.Exec(`
		UPDATE issues
		SET title = ?, body = ?, keep = 1
		WHERE id = ?
	`, issue.Title, issue.Body, existing.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update issue: %w", err)
	}

	return existing.ID, nil
}

func (r *IssRepo) MarkNotKeptForProject(projectID int64) error {
	_, err := r.db.Exec(`UPDATE issues SET keep = 0 WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to mark issues: %w", err)
	}
	return nil
}

// MarkKeptForProject flips all of a project's issues back to kept in bulk.
// Used on a 304 from the issue list endpoint.
func (r *IssRepo) MarkKeptForProject(projectID int64) error {
	_, err := r.db.Exec(`UPDATE issues SET keep = 1 WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to mark issues kept: %w", err)
	}
	return nil
}

func (r *IssRepo) SweepNotKept() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM issues WHERE keep = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep issues: %w", err)
	}
	return result.RowsAffected()
}

func (r *IssRepo) LabelsForIssue(issueID int64) ([]Label, error) {
	rows, err := r.db.Query(`
		SELECT id, name, COALESCE(color, ''), COALESCE(url, ''), issue_id
		FROM labels
		WHERE issue_id = ?
		ORDER BY name
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	defer rows.Close()

	var labels []Label
	for rows.Next() {
		var label Label
		err := rows.Scan(&label.ID, &label.Name, &label.Color, &label.URL, &label.IssueID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan label row: %w", err)
		}
		labels = append(labels, label)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating label rows: %w", err)
	}

	return labels, nil
}

func (r *IssRepo) AddLabel(label *Label) error {
	_, err := r.db.Exec(`
		INSERT INTO labels (name, color, url, issue_id)
		VALUES (?, ?, ?, ?)
	`, label.Name, label.Color, label.URL, label.IssueID)
	if err != nil {
		return fmt.Errorf("failed to add label: %w", err)
	}
	return nil
}

func (r *IssRepo) DeleteLabel(issueID int64, name string) error {
	_, err := r.db.Exec(`DELETE FROM labels WHERE issue_id = ? AND name = ?`, issueID, name)
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	return nil
}
