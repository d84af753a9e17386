package documents

import "fmt"

const (
	StatusActive = "active"
	kind         = "documents"
)

// Metadata describes one uploaded document. Entries are created on upload
// and only ever removed afterwards.
type Metadata struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	OriginalFilename string   `json:"original_filename"`
	Type             string   `json:"type"`
	MimeType         string   `json:"mime_type"`
	MatterID         string   `json:"matter_id,omitempty"`
	Tags             []string `json:"tags"`
	IsPrivileged     bool     `json:"is_privileged"`
	Description      string   `json:"description"`
	Size             string   `json:"size"`
	SizeBytes        int64    `json:"size_bytes"`
	UploadDate       string   `json:"upload_date"`
	UploadedBy       string   `json:"uploaded_by"`
	UploadedByEmail  string   `json:"uploaded_by_email"`
	Status           string   `json:"status"`
	Path             string   `json:"path"`
}

// HumanSize formats n bytes as B, KB or MB.
func HumanSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
