package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/civicboard/civicboard/app/naming"
)

var _ OrganizationRepository = (*OrgRepo)(nil)

// OrgRepo handles database operations for organizations
type OrgRepo struct {
	db Querier
}

func NewOrganizationRepository(db Querier) *OrgRepo {
	return &OrgRepo{db: db}
}

const organizationColumns = `name, COALESCE(website, ''), COALESCE(events_url, ''), COALESCE(rss, ''),
	       COALESCE(projects_list_url, ''), COALESCE(type, ''), COALESCE(city, ''),
	       COALESCE(latitude, 0), COALESCE(longitude, 0), COALESCE(last_updated, 0),
	       COALESCE(started_on, ''), member_count, COALESCE(logo_url, ''), keep, COALESCE(id, '')`

func scanOrganization(row interface{ Scan(...any) error }) (*Organization, error) {
	var org Organization
	err := row.Scan(
		&org.Name, &org.Website, &org.EventsURL, &org.RSS,
		&org.ProjectsListURL, &org.Type, &org.City,
		&org.Latitude, &org.Longitude, &org.LastUpdated,
		&org.StartedOn, &org.MemberCount, &org.LogoURL, &org.Keep, &org.ID,
	)
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *OrgRepo) GetByName(name string) (*Organization, error) {
	row := r.db.QueryRow(`
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE name = ?
	`, name)

	org, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization by name: %w", err)
	}
	return org, nil
}

// GetByID retrieves an organization by its URL-safe slug.
func (r *OrgRepo) GetByID(id string) (*Organization, error) {
	row := r.db.QueryRow(`
		SELECT `+organizationColumns+`
		FROM organizations
		WHERE id = ?
	`, id)

	org, err := scanOrganization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization by id: %w", err)
	}
	return org, nil
}

func (r *OrgRepo) All() ([]Organization, error) {
	rows, err := r.db.Query(`
		SELECT ` + organizationColumns + `
		FROM organizations
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization row: %w", err)
		}
		orgs = append(orgs, *org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organization rows: %w", err)
	}

	return orgs, nil
}

func (r *OrgRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM organizations").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get organization count: %w", err)
	}
	return count, nil
}

// Upsert inserts a new organization or refreshes an existing one by name.
// New rows get a first-seen date and a URL-safe slug; existing rows get a
// fresh last_updated, keep=1 and all incoming field values. The slug is
// backfilled on rows saved before slugs existed.
func (r *OrgRepo) Upsert(org *Organization) error {
	existing, err := r.GetByName(org.Name)
	if err != nil {
		return fmt.Errorf("failed to check existing organization: %w", err)
	}

	now := time.Now().Unix()
	slug := naming.Safe(naming.Raw(org.Name))

	if existing == nil {
		_, err = r.db.Exec(`
			INSERT INTO organizations (name, website, events_url, rss, projects_list_url,
			                           type, city, latitude, longitude, last_updated,
			                           started_on, logo_url, keep, id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		`, org.Name, org.Website, org.EventsURL, org.RSS, org.ProjectsListURL,
			org.Type, org.City, org.Latitude, org.Longitude, now,
			time.Now().Format("2006-01-02"), org.LogoURL, slug)
		if err != nil {
			return fmt.Errorf("failed to insert organization: %w", err)
		}
		return nil
	}

	if existing.ID == "" {
		existing.ID = slug
	}

	_, err = r.db.Exec(`
		UPDATE organizations
		SET website = ?, events_url = ?, rss = ?, projects_list_url = ?,
		    type = ?, city = ?, latitude = ?, longitude = ?, last_updated = ?,
		    logo_url = ?, keep = 1, id = ?
		WHERE name = ?
	`, org.Website, org.EventsURL, org.RSS, org.ProjectsListURL,
		org.Type, org.City, org.Latitude, org.Longitude, now,
		org.LogoURL, existing.ID, org.Name)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}

	return nil
}

func (r *OrgRepo) UpdateMemberCount(name string, count int) error {
	_, err := r.db.Exec(`
		UPDATE organizations
		SET member_count = ?
		WHERE name = ?
	`, count, name)
	if err != nil {
		return fmt.Errorf("failed to update member count: %w", err)
	}
	return nil
}

func (r *OrgRepo) MarkNotKept(name string) error {
	_, err := r.db.Exec(`UPDATE organizations SET keep = 0 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to mark organization: %w", err)
	}
	return nil
}

func (r *OrgRepo) SweepNotKept() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM organizations WHERE keep = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep organizations: %w", err)
	}
	return result.RowsAffected()
}

// DeleteByName removes an organization; descendants go with it via the
// cascade chain.
func (r *OrgRepo) DeleteByName(name string) error {
	_, err := r.db.Exec(`DELETE FROM organizations WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}
