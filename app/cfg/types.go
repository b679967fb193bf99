package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	Port           string
	OrgSources     string
	OrgName        string
	UpdateInterval int
	Once           bool

	// Upstream credentials
	GitHubToken string
	MeetupKey   string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
