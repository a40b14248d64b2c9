package dto

// RebuildRequest names an RDF export on the server filesystem to compile
// into a fresh graph build.
type RebuildRequest struct {
	Path   string `json:"path" binding:"required"`
	Format string `json:"format,omitempty"`
}
