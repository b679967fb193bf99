package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

var _ AttendanceRepository = (*AttRepo)(nil)

// AttRepo handles database operations for attendance summaries
type AttRepo struct {
	db Querier
}

func NewAttendanceRepository(db Querier) *AttRepo {
	return &AttRepo{db: db}
}

func (r *AttRepo) GetByOrganization(organizationName string) (*Attendance, error) {
	var attendance Attendance
	var weekly string

	err := r.db.QueryRow(`
		SELECT organization_url, organization_name, COALESCE(total, 0), COALESCE(weekly, '')
		FROM attendance
		WHERE organization_name = ?
	`, organizationName).Scan(
		&attendance.OrganizationURL, &attendance.OrganizationName, &attendance.Total, &weekly,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}

	if weekly != "" {
		if err := json.Unmarshal([]byte(weekly), &attendance.Weekly); err != nil {
			return nil, fmt.Errorf("failed to decode weekly attendance: %w", err)
		}
	}

	return &attendance, nil
}

// Upsert inserts or replaces the attendance summary for an organization.
func (r *AttRepo) Upsert(attendance *Attendance) error {
	weekly, err := encodeJSON(attendance.Weekly)
	if err != nil {
		return fmt.Errorf("failed to encode weekly attendance: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO attendance (organization_url, organization_name, total, weekly)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (organization_url) DO UPDATE SET
			total = excluded.total,
			weekly = excluded.weekly
	`, attendance.OrganizationURL, attendance.OrganizationName, attendance.Total, weekly)
	if err != nil {
		return fmt.Errorf("failed to upsert attendance: %w", err)
	}

	return nil
}
