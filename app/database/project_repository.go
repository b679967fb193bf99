package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

var _ ProjectRepository = (*ProjRepo)(nil)

// ProjRepo handles database operations for projects
type ProjRepo struct {
	db Querier
}

func NewProjectRepository(db Querier) *ProjRepo {
	return &ProjRepo{db: db}
}

const projectColumns = `id, name, COALESCE(code_url, ''), COALESCE(link_url, ''), COALESCE(description, ''),
	       COALESCE(type, ''), COALESCE(categories, ''), COALESCE(tags, ''), COALESCE(github_details, ''),
	       COALESCE(status, ''), COALESCE(languages, ''), COALESCE(commit_status, ''), last_updated,
	       COALESCE(last_updated_issues, ''), COALESCE(last_updated_civic_json, ''),
	       COALESCE(last_updated_root_files, ''), keep, organization_name`

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var p Project
	var tags, details, languages string

	err := row.Scan(
		&p.ID, &p.Name, &p.CodeURL, &p.LinkURL, &p.Description,
		&p.Type, &p.Categories, &tags, &details,
		&p.Status, &languages, &p.CommitStatus, &p.LastUpdated,
		&p.LastUpdatedIssues, &p.LastUpdatedCivicJSON,
		&p.LastUpdatedRootFiles, &p.Keep, &p.OrganizationName,
	)
	if err != nil {
		return nil, err
	}

	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode project tags: %w", err)
		}
	}
	if languages != "" {
		if err := json.Unmarshal([]byte(languages), &p.Languages); err != nil {
			return nil, fmt.Errorf("failed to decode project languages: %w", err)
		}
	}
	if details != "" {
		p.GitHubDetails = &GitHubDetails{}
		if err := json.Unmarshal([]byte(details), p.GitHubDetails); err != nil {
			return nil, fmt.Errorf("failed to decode github details: %w", err)
		}
	}

	return &p, nil
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *Project) encodedColumns() (tags, details, languages string, err error) {
	if len(p.Tags) > 0 {
		if tags, err = encodeJSON(p.Tags); err != nil {
			return "", "", "", fmt.Errorf("failed to encode project tags: %w", err)
		}
	}
	if len(p.Languages) > 0 {
		if languages, err = encodeJSON(p.Languages); err != nil {
			return "", "", "", fmt.Errorf("failed to encode project languages: %w", err)
		}
	}
	if p.GitHubDetails != nil {
		if details, err = encodeJSON(p.GitHubDetails); err != nil {
			return "", "", "", fmt.Errorf("failed to encode github details: %w", err)
		}
	}
	return tags, details, languages, nil
}

func (r *ProjRepo) GetByNaturalKey(name, organizationName string) (*Project, error) {
	row := r.db.QueryRow(`
		SELECT `+projectColumns+`
		FROM projects
		WHERE name = ? AND organization_name = ?
	`, name, organizationName)

	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// FindByCodeURL looks up a project by code URL and organization, narrowed by
// name when the caller already knows it.
func (r *ProjRepo) FindByCodeURL(codeURL, organizationName, name string) (*Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE code_url = ? AND organization_name = ?`
	args := []any{codeURL, organizationName}

	if name != "" {
		query += ` AND name = ?`
		args = append(args, name)
	}

	row := r.db.QueryRow(query, args...)

	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project by code url: %w", err)
	}
	return project, nil
}

func (r *ProjRepo) ForOrganization(organizationName string) ([]Project, error) {
	rows, err := r.db.Query(`
		SELECT `+projectColumns+`
		FROM projects
		WHERE organization_name = ?
		ORDER BY last_updated DESC
	`, organizationName)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		projects = append(projects, *project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}

	return projects, nil
}

func (r *ProjRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM projects").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get project count: %w", err)
	}
	return count, nil
}

// Upsert inserts or updates a project by its (name, organization) natural
// key, sets keep=1, and returns the row id.
func (r *ProjRepo) Upsert(project *Project) (int64, error) {
	tags, details, languages, err := project.encodedColumns()
	if err != nil {
		return 0, err
	}

	existing, err := r.GetByNaturalKey(project.Name, project.OrganizationName)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing project: %w", err)
	}

	if existing == nil {
		result, err := r.db.Exec(`
			INSERT INTO projects (name, code_url, link_url, description, type, categories,
			                      tags, github_details, status, languages, commit_status,
			                      last_updated, last_updated_issues, last_updated_civic_json,
			                      last_updated_root_files, keep, organization_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		`, project.Name, project.CodeURL, project.LinkURL, project.Description, project.Type,
			project.Categories, tags, details, project.Status, languages, project.CommitStatus,
			project.LastUpdated, project.LastUpdatedIssues, project.LastUpdatedCivicJSON,
			project.LastUpdatedRootFiles, project.OrganizationName)
		if err != nil {
			return 0, fmt.Errorf("failed to insert project: %w", err)
		}
		return result.LastInsertId()
	}

	_, err = r.db.Exec(`
		UPDATE projects
		SET code_url = ?, link_url = ?, description = ?, type = ?, categories = ?,
		    tags = ?, github_details = ?, status = ?, languages = ?, commit_status = ?,
		    last_updated = ?, last_updated_issues = ?, last_updated_civic_json = ?,
		    last_updated_root_files = ?, keep = 1
		WHERE id = ?
	`, project.CodeURL, project.LinkURL, project.Description, project.Type, project.Categories,
		tags, details, project.Status, languages, project.CommitStatus,
		project.LastUpdated, project.LastUpdatedIssues, project.LastUpdatedCivicJSON,
		project.LastUpdatedRootFiles, existing.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update project: %w", err)
	}

	return existing.ID, nil
}

func (r *ProjRepo) UpdateIssuesToken(id int64, token string) error {
	_, err := r.db.Exec(`UPDATE projects SET last_updated_issues = ? WHERE id = ?`, token, id)
	if err != nil {
		return fmt.Errorf("failed to update issues token: %w", err)
	}
	return nil
}

func (r *ProjRepo) SetKeep(id int64, keep bool) error {
	_, err := r.db.Exec(`UPDATE projects SET keep = ? WHERE id = ?`, keep, id)
	if err != nil {
		return fmt.Errorf("failed to set project keep flag: %w", err)
	}
	return nil
}

// MarkNotKeptForOrganization clears the keep flag on an organization's
// projects and, transitively, on their issues with one bulk statement each.
func (r *ProjRepo) MarkNotKeptForOrganization(organizationName string) error {
	_, err := r.db.Exec(`
		UPDATE issues SET keep = 0
		WHERE project_id IN (SELECT id FROM projects WHERE organization_name = ?)
	`, organizationName)
	if err != nil {
		return fmt.Errorf("failed to mark issues: %w", err)
	}

	_, err = r.db.Exec(`UPDATE projects SET keep = 0 WHERE organization_name = ?`, organizationName)
	if err != nil {
		return fmt.Errorf("failed to mark projects: %w", err)
	}
	return nil
}

func (r *ProjRepo) SweepNotKept() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM projects WHERE keep = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep projects: %w", err)
	}
	return result.RowsAffected()
}

func (r *ProjRepo) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}
