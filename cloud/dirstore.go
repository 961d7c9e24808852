package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DirStore implements Store on top of a mounted directory: a NAS share,
// rclone mount, or synced drive folder. Folder IDs are relative paths.
type DirStore struct {
	Root string
}

// NewDirStore creates the store, making sure the root exists.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup root %s: %w", root, err)
	}
	return &DirStore{Root: root}, nil
}

func (d *DirStore) EnsureFolder(_ context.Context, name, parentID string) (string, error) {
	rel := filepath.Join(parentID, name)
	if err := os.MkdirAll(filepath.Join(d.Root, rel), 0755); err != nil {
		return "", err
	}
	return rel, nil
}

func (d *DirStore) Upload(_ context.Context, localPath, folderID, remoteName string) (*RemoteFile, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	destPath := filepath.Join(d.Root, folderID, remoteName)
	dest, err := os.Create(destPath)
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return nil, err
	}
	if err := dest.Close(); err != nil {
		return nil, err
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, err
	}

	return &RemoteFile{
		ID:           filepath.Join(folderID, remoteName),
		Name:         remoteName,
		ModifiedTime: info.ModTime().UTC().Format(time.RFC3339Nano),
	}, nil
}

func (d *DirStore) Metadata(_ context.Context, folderID, name string) (*RemoteFile, error) {
	path := filepath.Join(d.Root, folderID, name)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &RemoteFile{
		ID:           filepath.Join(folderID, name),
		Name:         name,
		ModifiedTime: info.ModTime().UTC().Format(time.RFC3339Nano),
	}, nil
}

func (d *DirStore) IsRemoteOlder(localPath, remoteModifiedTime string) (bool, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return false, err
	}
	remote, err := time.Parse(time.RFC3339Nano, remoteModifiedTime)
	if err != nil {
		return true, nil // unparseable remote timestamp: assume stale
	}
	return info.ModTime().After(remote), nil
}

// ForService resolves a --service flag value to a store implementation.
func ForService(name, target string) (Store, error) {
	switch name {
	case "localdir":
		if target == "" {
			return nil, fmt.Errorf("localdir service needs a target directory (--target)")
		}
		return NewDirStore(target)
	case "gdrive":
		return nil, fmt.Errorf("gdrive service is not configured in this build; mount the drive and use --service localdir")
	default:
		return nil, fmt.Errorf("unknown cloud service %q", name)
	}
}
