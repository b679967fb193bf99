package database

import (
	"database/sql"
	"time"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repositories are constructed over a Querier so the reconciliation driver
// can scope a whole organization's writes to one transaction while the API
// layer reads through the plain connection.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

var _ Querier = (*sql.DB)(nil)
var _ Querier = (*sql.Tx)(nil)

type OrganizationRepository interface {
	GetByName(name string) (*Organization, error)
	GetByID(id string) (*Organization, error)
	All() ([]Organization, error)
	Count() (int, error)

	Upsert(org *Organization) error
	UpdateMemberCount(name string, count int) error

	MarkNotKept(name string) error
	SweepNotKept() (int64, error)
	DeleteByName(name string) error
}

type ProjectRepository interface {
	GetByNaturalKey(name, organizationName string) (*Project, error)
	FindByCodeURL(codeURL, organizationName, name string) (*Project, error)
	ForOrganization(organizationName string) ([]Project, error)
	Count() (int, error)

	Upsert(project *Project) (int64, error)
	UpdateIssuesToken(id int64, token string) error
	SetKeep(id int64, keep bool) error

	MarkNotKeptForOrganization(organizationName string) error
	SweepNotKept() (int64, error)
	Delete(id int64) error
}

type IssueRepository interface {
	GetByNaturalKey(htmlURL string, projectID int64) (*Issue, error)
	ForProject(projectID int64) ([]Issue, error)

	Upsert(issue *Issue) (int64, error)

	MarkNotKeptForProject(projectID int64) error
	MarkKeptForProject(projectID int64) error
	SweepNotKept() (int64, error)

	LabelsForIssue(issueID int64) ([]Label, error)
	AddLabel(label *Label) error
	DeleteLabel(issueID int64, name string) error
}

type EventRepository interface {
	ForOrganization(organizationName string) ([]Event, error)

	Upsert(event *Event) error

	MarkNotKeptForOrganization(organizationName string) error
	SweepNotKept() (int64, error)
}

type StoryRepository interface {
	ForOrganization(organizationName string) ([]Story, error)

	Upsert(story *Story) error

	MarkNotKeptForOrganization(organizationName string) error
	SweepNotKept() (int64, error)
}

type AttendanceRepository interface {
	GetByOrganization(organizationName string) (*Attendance, error)
	Upsert(attendance *Attendance) error
}

type ErrorRepository interface {
	Record(message string, at time.Time) error
	Recent(limit int) ([]ErrorRecord, error)
}
