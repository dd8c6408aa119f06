package drive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	FolderMimeType      = "application/vnd.google-apps.folder"
	SpreadsheetMimeType = "application/vnd.google-apps.spreadsheet"
)

type Service struct {
	srv *drive.Service
}

func NewService(ctx context.Context, credentialsJSON string) (*Service, error) {
	config, err := google.JWTConfigFromJSON([]byte(credentialsJSON), drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return &Service{srv: srv}, nil
}

type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

func (f *File) IsFolder() bool      { return f.MimeType == FolderMimeType }
func (f *File) IsSpreadsheet() bool { return f.MimeType == SpreadsheetMimeType }

// ListFolder returns every non-trashed file directly inside folderID.
func (s *Service) ListFolder(ctx context.Context, folderID string) ([]*File, error) {
	if folderID == "" {
		folderID = "root"
	}

	var files []*File
	call := s.srv.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed=false", folderID)).
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)

	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			files = append(files, &File{
				ID:           f.Id,
				Name:         f.Name,
				MimeType:     f.MimeType,
				ModifiedTime: f.ModifiedTime,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list folder %s: %w", folderID, err)
	}

	return files, nil
}

// CopyTemplate copies a template file into folderID under a new name and returns the copy's id.
func (s *Service) CopyTemplate(ctx context.Context, templateID, name, folderID string) (string, error) {
	copied, err := s.srv.Files.Copy(templateID, &drive.File{
		Name:    name,
		Parents: []string{folderID},
	}).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("unable to copy template %s: %w", templateID, err)
	}
	return copied.Id, nil
}

// GrantAccess shares fileID with each email using role (reader, commenter or writer).
func (s *Service) GrantAccess(ctx context.Context, fileID string, emails []string, role string) error {
	for _, email := range emails {
		_, err := s.srv.Permissions.Create(fileID, &drive.Permission{
			Type:         "user",
			Role:         role,
			EmailAddress: email,
		}).
			SupportsAllDrives(true).
			SendNotificationEmail(false).
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("unable to grant %s access to %s: %w", role, email, err)
		}
	}
	return nil
}

// Download returns the raw content of a binary file such as an xlsx upload.
func (s *Service) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := s.srv.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("unable to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("unable to read file %s: %w", fileID, err)
	}
	return buf.Bytes(), nil
}
