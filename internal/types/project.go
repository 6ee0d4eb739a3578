package types

// Project is one pipeline invocation. Every artifact of the run lives under Dir.
type Project struct {
	ID          string `json:"project_id"`
	RepoName    string `json:"repo_name"`
	RepoPath    string `json:"repo_path"`
	Dir         string `json:"project_dir"`
	CommitCount int    `json:"commit_count,omitempty"`
}

// GeneratedFile is one source file produced by code synthesis.
type GeneratedFile struct {
	FilePath string `json:"file_path"`
	Code     string `json:"code"`
}

// MockSchema is the full schema answer, including samples used to seed
// mock-data generation.
type MockSchema struct {
	CollectionName string         `json:"collection_name"`
	Schema         map[string]any `json:"schema"`
	Samples        map[string]any `json:"samples"`
}

// UnknownMockSchema is the sentinel used when schema inference fails.
func UnknownMockSchema() MockSchema {
	return MockSchema{CollectionName: "unknown", Schema: map[string]any{}, Samples: map[string]any{}}
}

func (m MockSchema) IsUnknown() bool { return m.CollectionName == "unknown" }

// Public drops samples and stamps the database name.
func (m MockSchema) Public(dbName string) *DatabaseSchema {
	schema := m.Schema
	if schema == nil {
		schema = map[string]any{}
	}
	return &DatabaseSchema{CollectionName: m.CollectionName, Schema: schema, DBName: dbName}
}

// Result is the terminal output of a pipeline run.
type Result struct {
	ProjectID   string `json:"project_id"`
	RepoName    string `json:"repo_name"`
	OutputPath  string `json:"output_path"`
	ArchivePath string `json:"archive_path"`
	ArchiveURL  string `json:"archive_url,omitempty"`
}
