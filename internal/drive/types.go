// Package drive reads study materials out of Google Drive: it authenticates with a
// service account, walks folder trees, and downloads file content with retries.
package drive

// MimeTypeFolder is the reserved MIME type Drive uses for folders.
const MimeTypeFolder = "application/vnd.google-apps.folder"

// FileDescriptor identifies a remote file without its content.
type FileDescriptor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// IsFolder reports whether the descriptor names a folder.
func (f FileDescriptor) IsFolder() bool {
	return f.MimeType == MimeTypeFolder
}

// Page is one page of a folder listing.
type Page struct {
	Items         []FileDescriptor
	NextPageToken string
}
