package database

import (
	"database/sql"
	"fmt"
)

var _ EventRepository = (*EvtRepo)(nil)

// EvtRepo handles database operations for events
type EvtRepo struct {
	db Querier
}

func NewEventRepository(db Querier) *EvtRepo {
	return &EvtRepo{db: db}
}

const eventColumns = `id, COALESCE(name, ''), COALESCE(description, ''), event_url, COALESCE(location, ''),
	       latitude, longitude, COALESCE(created_at, ''), start_time_notz, end_time_notz,
	       COALESCE(utc_offset, 0), COALESCE(rsvps, 0), keep, organization_name`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var event Event
	err := row.Scan(
		&event.ID, &event.Name, &event.Description, &event.EventURL, &event.Location,
		&event.Latitude, &event.Longitude, &event.CreatedAt, &event.StartTimeNoTZ, &event.EndTimeNoTZ,
		&event.UTCOffset, &event.RSVPs, &event.Keep, &event.OrganizationName,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *EvtRepo) ForOrganization(organizationName string) ([]Event, error) {
	rows, err := r.db.Query(`
		SELECT `+eventColumns+`
		FROM events
		WHERE organization_name = ?
		ORDER BY start_time_notz
	`, organizationName)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}

	return events, nil
}

func (r *EvtRepo) getByNaturalKey(eventURL, organizationName string) (*Event, error) {
	row := r.db.QueryRow(`
		SELECT `+eventColumns+`
		FROM events
		WHERE event_url = ? AND organization_name = ?
	`, eventURL, organizationName)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

// Upsert inserts or updates an event by (event_url, organization_name) and
// sets keep=1.
func (r *EvtRepo) Upsert(event *Event) error {
	existing, err := r.getByNaturalKey(event.EventURL, event.OrganizationName)
	if err != nil {
		return fmt.Errorf("failed to check existing event: %w", err)
	}

	if existing == nil {
		_, err = r.db.Exec(`
			INSERT INTO events (name, description, event_url, location, latitude, longitude,
			                    created_at, start_time_notz, end_time_notz, utc_offset, rsvps,
			                    keep, organization_name)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
		`, event.Name, event.Description, event.EventURL, event.Location, event.Latitude, event.Longitude,
			event.CreatedAt, event.StartTimeNoTZ, event.EndTimeNoTZ, event.UTCOffset, event.RSVPs,
			event.OrganizationName)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		return nil
	}

	_, err = r.db.Exec(`
		UPDATE events
		SET name = ?, description = ?, location = ?, latitude = ?, longitude = ?,
		    created_at = ?, start_time_notz = ?, end_time_notz = ?, utc_offset = ?,
		    rsvps = ?, keep = 1
		WHERE id = ?
	`, event.Name, event.Description, event.Location, event.Latitude, event.Longitude,
		event.CreatedAt, event.StartTimeNoTZ, event.EndTimeNoTZ, event.UTCOffset,
		event.RSVPs, existing.ID)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	return nil
}

func (r *EvtRepo) MarkNotKeptForOrganization(organizationName string) error {
	_, err := r.db.Exec(`UPDATE events SET keep = 0 WHERE organization_name = ?`, organizationName)
	if err != nil {
		return fmt.Errorf("failed to mark events: %w", err)
	}
	return nil
}

func (r *EvtRepo) SweepNotKept() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM events WHERE keep = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep events: %w", err)
	}
	return result.RowsAffected()
}
