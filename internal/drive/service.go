package drive

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const listFields = "nextPageToken, files(id, name, mimeType)"

// Client adapts the Drive v3 API to the Lister and Downloader interfaces.
type Client struct {
	svc      *drive.Service
	pageSize int64
}

// NewClient authenticates with the service account and builds a Drive client.
func NewClient(ctx context.Context, creds Credentials, pageSize int64) (*Client, error) {
	ts, err := creds.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return NewClientFromService(svc, pageSize), nil
}

// NewClientFromService wraps an existing Drive service.
func NewClientFromService(svc *drive.Service, pageSize int64) *Client {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Client{svc: svc, pageSize: pageSize}
}

// ListChildren lists one page of the non-trashed direct children of parentID.
func (c *Client) ListChildren(ctx context.Context, parentID, pageToken string) (*Page, error) {
	call := c.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", parentID)).
		Fields(listFields).
		PageSize(c.pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	list, err := call.Do()
	if err != nil {
		return nil, WrapError(err)
	}

	page := &Page{
		Items:         make([]FileDescriptor, 0, len(list.Files)),
		NextPageToken: list.NextPageToken,
	}
	for _, f := range list.Files {
		page.Items = append(page.Items, FileDescriptor{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
	}
	return page, nil
}

// Open starts a media download of fileID.
func (c *Client) Open(ctx context.Context, fileID string) (*http.Response, error) {
	resp, err := c.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, WrapError(err)
	}
	return resp, nil
}
