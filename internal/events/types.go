package events

// Event types published by a project.
const (
	ProjectLoaded     = "project.loaded"
	ProjectLoadFailed = "project.load_failed"
	ProjectReloaded   = "project.reloaded"
	ReloadFailed      = "project.reload_failed"
	PoolRetired       = "pool.retired"
	FileChanged       = "file.changed"
	ExportCompleted   = "export.completed"
)

// Lifecycle is the payload of load and reload events.
type Lifecycle struct {
	Project     string `json:"project"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Raster      string `json:"raster_generation,omitempty"`
	Vector      string `json:"vector_generation,omitempty"`
	Unchanged   bool   `json:"unchanged,omitempty"`
	DurationMS  int64  `json:"duration_ms"`
	Error       string `json:"error,omitempty"`
}

// Retired is the payload of PoolRetired.
type Retired struct {
	Project    string `json:"project"`
	Kind       string `json:"kind"`
	Generation string `json:"generation"`
	Error      string `json:"error,omitempty"`
}

// File is the payload of FileChanged.
type File struct {
	Project string `json:"project"`
	Name    string `json:"name"`
	Op      string `json:"op"`
	Queued  bool   `json:"queued"`
}

// Export is the payload of ExportCompleted.
type Export struct {
	Project    string `json:"project"`
	Format     string `json:"format"`
	Bytes      int    `json:"bytes"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}
