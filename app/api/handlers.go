package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicboard/civicboard/app/database"
	"github.com/civicboard/civicboard/app/naming"
)

type Handler struct {
	orgRepo        database.OrganizationRepository
	projectRepo    database.ProjectRepository
	issueRepo      database.IssueRepository
	eventRepo      database.EventRepository
	storyRepo      database.StoryRepository
	attendanceRepo database.AttendanceRepository
	errorRepo      database.ErrorRepository
}

func NewHandler(db *database.DB) *Handler {
	return &Handler{
		orgRepo:        database.NewOrganizationRepository(db),
		projectRepo:    database.NewProjectRepository(db),
		issueRepo:      database.NewIssueRepository(db),
		eventRepo:      database.NewEventRepository(db),
		storyRepo:      database.NewStoryRepository(db),
		attendanceRepo: database.NewAttendanceRepository(db),
		errorRepo:      database.NewErrorRepository(db),
	}
}

// lookupOrganization resolves the :id path parameter as a slug first and as
// a raw name second, so both "Code-for-Springfield" and "Code for
// Springfield" work.
func (h *Handler) lookupOrganization(c *gin.Context) *database.Organization {
	id := c.Param("id")

	org, err := h.orgRepo.GetByID(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_organization", "id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return nil
	}
	if org == nil {
		org, err = h.orgRepo.GetByName(naming.Raw(id))
		if err != nil {
			slog.Error("Database error", "operation", "get_organization", "id", id, "error", err)
			c.Status(http.StatusInternalServerError)
			return nil
		}
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return nil
	}
	return org
}

func (h *Handler) ListOrganizations(c *gin.Context) {
	orgs, err := h.orgRepo.All()
	if err != nil {
		slog.Error("Database error", "operation", "list_organizations", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]OrganizationResponse, 0, len(orgs))
	for i := range orgs {
		response = append(response, organizationResponse(&orgs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"objects": response, "total": len(response)})
}

func (h *Handler) GetOrganization(c *gin.Context) {
	org := h.lookupOrganization(c)
	if org == nil {
		return
	}
	c.JSON(http.StatusOK, organizationResponse(org))
}

func (h *Handler) GetOrganizationProjects(c *gin.Context) {
	org := h.lookupOrganization(c)
	if org == nil {
		return
	}

	projects, err := h.projectRepo.ForOrganization(org.Name)
	if err != nil {
		slog.Error("Database error", "operation", "list_projects", "organization", org.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]ProjectResponse, 0, len(projects))
	for i := range projects {
		response = append(response, projectResponse(&projects[i]))
	}
	c.JSON(http.StatusOK, gin.H{"objects": response, "total": len(response)})
}

func (h *Handler) GetOrganizationIssues(c *gin.Context) {
	org := h.lookupOrganization(c)
	if org == nil {
		return
	}

	projects, err := h.projectRepo.ForOrganization(org.Name)
	if err != nil {
		slog.Error("Database error", "operation", "list_projects", "organization", org.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := []IssueResponse{}
	for i := range projects {
		issues, err := h.issueRepo.ForProject(projects[i].ID)
		if err != nil {
			slog.Error("Database error", "operation", "list_issues", "project", projects[i].Name, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		for j := range issues {
			labels, err := h.issueRepo.LabelsForIssue(issues[j].ID)
			if err != nil {
				slog.Error("Database error", "operation", "list_labels", "issue", issues[j].ID, "error", err)
				c.Status(http.StatusInternalServerError)
				return
			}
			response = append(response, issueResponse(&issues[j], projects[i].Name, labels))
		}
	}
	c.JSON(http.StatusOK, gin.H{"objects": response, "total": len(response)})
}

func (h *Handler) GetOrganizationEvents(c *gin.Context) {
	org := h.lookupOrganization(c)
	if org == nil {
		return
	}

	events, err := h.eventRepo.ForOrganization(org.Name)
	if err != nil {
		slog.Error("Database error", "operation", "list_events", "organization", org.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]EventResponse, 0, len(events))
	for i := range events {
		response = append(response, eventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"objects": response, "total": len(response)})
}

func (h *Handler) GetOrganizationStories(c *gin.Context) {
	org := h.lookupOrganization(c)
	if org == nil {
		return
	}

	stories, err := h.storyRepo.ForOrganization(org.Name)
	if err != nil {
		slog.Error("Database error", "operation", "list_stories", "organization", org.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	response := make([]StoryResponse, 0, len(stories))
	for i := range stories {
		response = append(response, StoryResponse{
			ID:               stories[i].ID,
			Title:            stories[i].Title,
			Link:             stories[i].Link,
			Type:             stories[i].Type,
			OrganizationName: stories[i].OrganizationName,
		})
	}
	c.JSON(http.StatusOK, gin.H{"objects": response, "total": len(response)})
}

func (h *Handler) GetOrganizationAttendance(c *gin.Context) {
	org := h.lookupOrganization(c)
	if org == nil {
		return
	}

	attendance, err := h.attendanceRepo.GetByOrganization(org.Name)
	if err != nil {
		slog.Error("Database error", "operation", "get_attendance", "organization", org.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if attendance == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no attendance recorded"})
		return
	}

	c.JSON(http.StatusOK, AttendanceResponse{
		OrganizationURL:  attendance.OrganizationURL,
		OrganizationName: attendance.OrganizationName,
		Total:            attendance.Total,
		Weekly:           attendance.Weekly,
	})
}

// PutOrganizationAttendance stores an attendance summary reported by the
// check-in side tool. This is the only write the API accepts.
func (h *Handler) PutOrganizationAttendance(c *gin.Context) {
	org := h.lookupOrganization(c)
	if org == nil {
		return
	}

	var body struct {
		OrganizationURL string         `json:"organization_url"`
		Total           int            `json:"total"`
		Weekly          map[string]int `json:"weekly"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed attendance payload"})
		return
	}
	if body.OrganizationURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization_url is required"})
		return
	}

	err := h.attendanceRepo.Upsert(&database.Attendance{
		OrganizationURL:  body.OrganizationURL,
		OrganizationName: org.Name,
		Total:            body.Total,
		Weekly:           body.Weekly,
	})
	if err != nil {
		slog.Error("Database error", "operation", "put_attendance", "organization", org.Name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if orgCount, err := h.orgRepo.Count(); err == nil {
		health["organizations"] = orgCount
	}
	if projectCount, err := h.projectRepo.Count(); err == nil {
		health["projects"] = projectCount
	}

	if recent, err := h.errorRepo.Recent(10); err == nil {
		errors := make([]string, 0, len(recent))
		for i := range recent {
			errors = append(errors, recent[i].String())
		}
		health["recent_errors"] = errors
	}

	c.JSON(http.StatusOK, health)
}

func organizationResponse(org *database.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:              org.ID,
		Name:            org.Name,
		Website:         org.Website,
		EventsURL:       org.EventsURL,
		RSS:             org.RSS,
		ProjectsListURL: org.ProjectsListURL,
		Type:            org.Type,
		City:            org.City,
		Latitude:        org.Latitude,
		Longitude:       org.Longitude,
		MemberCount:     org.MemberCount,
		LogoURL:         org.LogoURL,
		StartedOn:       org.StartedOn,
		LastUpdated:     org.LastUpdated,
	}
}

func projectResponse(project *database.Project) ProjectResponse {
	response := ProjectResponse{
		ID:               project.ID,
		Name:             project.Name,
		CodeURL:          project.CodeURL,
		LinkURL:          project.LinkURL,
		Description:      project.Description,
		Type:             project.Type,
		Categories:       project.Categories,
		Tags:             project.Tags,
		GitHubDetails:    project.GitHubDetails,
		Status:           project.Status,
		Languages:        project.Languages,
		CommitStatus:     project.CommitStatus,
		OrganizationName: project.OrganizationName,
	}
	if project.LastUpdated != nil {
		response.LastUpdated = project.LastUpdated.Format(time.RFC3339)
	}
	return response
}

func issueResponse(issue *database.Issue, projectName string, labels []database.Label) IssueResponse {
	response := IssueResponse{
		ID:      issue.ID,
		Title:   issue.Title,
		HTMLURL: issue.HTMLURL,
		Body:    issue.Body,
		Labels:  make([]LabelResponse, 0, len(labels)),
		Project: projectName,
	}
	for _, label := range labels {
		response.Labels = append(response.Labels, LabelResponse{Name: label.Name, Color: label.Color, URL: label.URL})
	}
	return response
}

func eventResponse(event *database.Event) EventResponse {
	return EventResponse{
		ID:               event.ID,
		Name:             event.Name,
		EventURL:         event.EventURL,
		Description:      event.Description,
		Location:         event.Location,
		Latitude:         event.Latitude,
		Longitude:        event.Longitude,
		StartTime:        event.StartTime(),
		EndTime:          event.EndTime(),
		UTCOffset:        event.UTCOffset,
		RSVPs:            event.RSVPs,
		OrganizationName: event.OrganizationName,
	}
}
