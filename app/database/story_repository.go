package database

import (
	"database/sql"
	"fmt"
)

var _ StoryRepository = (*StoRepo)(nil)

// StoRepo handles database operations for stories
type StoRepo struct {
	db Querier
}

func NewStoryRepository(db Querier) *StoRepo {
	return &StoRepo{db: db}
}

func (r *StoRepo) ForOrganization(organizationName string) ([]Story, error) {
	rows, err := r.db.Query(`
		SELECT id, COALESCE(title, ''), link, COALESCE(type, ''), keep, organization_name
		FROM stories
		WHERE organization_name = ?
		ORDER BY id DESC
	`, organizationName)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories: %w", err)
	}
	defer rows.Close()

	var stories []Story
	for rows.Next() {
		var story Story
		err := rows.Scan(&story.ID, &story.Title, &story.Link, &story.Type, &story.Keep, &story.OrganizationName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story row: %w", err)
		}
		stories = append(stories, story)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating story rows: %w", err)
	}

	return stories, nil
}

// Upsert inserts or updates a story by (link, organization_name) and sets
// keep=1.
func (r *StoRepo) Upsert(story *Story) error {
	var existingID int64
	err := r.db.QueryRow(`
		SELECT id FROM stories WHERE link = ? AND organization_name = ?
	`, story.Link, story.OrganizationName).Scan(&existingID)

	if err == sql.ErrNoRows {
		_, err = r.db.Exec(`
			INSERT INTO stories (title, link, type, keep, organization_name)
			VALUES (?, ?, ?, 1, ?)
		`, story.Title, story.Link, story.Type, story.OrganizationName)
		if err != nil {
			return fmt.Errorf("failed to insert story: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check existing story: %w", err)
	}

	_, err = r.db.Exec(`
		UPDATE stories SET title = ?, type = ?, keep = 1 WHERE id = ?
	`, story.Title, story.Type, existingID)
	if err != nil {
		return fmt.Errorf("failed to update story: %w", err)
	}

	return nil
}

func (r *StoRepo) MarkNotKeptForOrganization(organizationName string) error {
	_, err := r.db.Exec(`UPDATE stories SET keep = 0 WHERE organization_name = ?`, organizationName)
	if err != nil {
		return fmt.Errorf("failed to mark stories: %w", err)
	}
	return nil
}

func (r *StoRepo) SweepNotKept() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM stories WHERE keep = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stories: %w", err)
	}
	return result.RowsAffected()
}
