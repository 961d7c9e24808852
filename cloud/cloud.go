// Package cloud replicates a workspace's progress files and EPUB artifacts
// to a cloud object store. The store itself is a capability interface;
// backup logic is provider-agnostic.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"wna/progress"
	"wna/workspace"
)

// ErrAuth is terminal: re-running will not help until credentials are fixed.
var ErrAuth = errors.New("cloud store authentication failed")

// RemoteFile describes an object in the store.
type RemoteFile struct {
	ID           string
	Name         string
	ModifiedTime string
}

// Store is the capability set a cloud provider must offer.
type Store interface {
	// EnsureFolder creates (or finds) a folder and returns its ID. An empty
	// parentID means the store root.
	EnsureFolder(ctx context.Context, name, parentID string) (string, error)

	// Upload pushes a local file into a folder under remoteName.
	Upload(ctx context.Context, localPath, folderID, remoteName string) (*RemoteFile, error)

	// Metadata looks up a file by name within a folder. Returns nil when
	// the file does not exist remotely.
	Metadata(ctx context.Context, folderID, name string) (*RemoteFile, error)

	// IsRemoteOlder reports whether the local file is newer than the
	// remote timestamp.
	IsRemoteOlder(localPath, remoteModifiedTime string) (bool, error)
}

// Options configure a backup pass.
type Options struct {
	// PermanentID restricts the backup to one story; empty means all.
	PermanentID string

	// ForceFullUpload skips the remote-staleness check.
	ForceFullUpload bool

	// RootFolderName is the store-side top folder. Defaults to "wna-backup".
	RootFolderName string
}

// Summary counts what one backup pass did.
type Summary struct {
	Stories  int
	Uploaded int
	Skipped  int
	Failed   int
}

// Backup walks every indexed story, uploading its progress file and EPUB
// artifacts. Upload state lands in each record's cloud_backup_status; the
// archive pipeline never writes that field.
func Backup(ctx context.Context, root string, store Store, opts Options) (*Summary, error) {
	if opts.RootFolderName == "" {
		opts.RootFolderName = "wna-backup"
	}

	ix, err := workspace.LoadIndex(root)
	if err != nil {
		return nil, err
	}
	layout := workspace.Layout{Root: root}

	rootFolder, err := store.EnsureFolder(ctx, opts.RootFolderName, "")
	if err != nil {
		return nil, fmt.Errorf("failed to ensure backup root folder: %w", err)
	}

	summary := &Summary{}

	for _, id := range ix.PermanentIDs() {
		if opts.PermanentID != "" && opts.PermanentID != id {
			continue
		}
		slug, _ := ix.SlugFor(id)

		if err := backupStory(ctx, store, layout, id, slug, rootFolder, opts, summary); err != nil {
			if errors.Is(err, ErrAuth) {
				return summary, err
			}
			log.Printf("[CloudBackup] Story %s failed: %v", id, err)
			summary.Failed++
		}
		summary.Stories++
	}

	return summary, nil
}

func backupStory(ctx context.Context, store Store, layout workspace.Layout, id, slug, rootFolder string, opts Options, summary *Summary) error {
	pstore := progress.NewStore(layout.StatusDir(slug))
	rec, err := pstore.Load(id, "")
	if err != nil {
		return err
	}

	if rec.CloudBackupStatus == nil {
		rec.CloudBackupStatus = &progress.CloudBackupStatus{}
	}
	rec.CloudBackupStatus.LastAttemptOn = progress.Now()

	folderID, err := store.EnsureFolder(ctx, slug, rootFolder)
	if err != nil {
		return err
	}

	// Progress file first, then every recorded EPUB artifact
	files := []string{pstore.Path()}
	if rec.LastEpubProcessing != nil {
		for _, ef := range rec.LastEpubProcessing.GeneratedEpubFiles {
			files = append(files, ef.AbsolutePath)
		}
	}

	allOK := true
	for _, localPath := range files {
		name := filepath.Base(localPath)

		if _, statErr := os.Stat(localPath); statErr != nil {
			log.Printf("[CloudBackup] Skipping missing local file %s", localPath)
			continue
		}

		if !opts.ForceFullUpload {
			remote, metaErr := store.Metadata(ctx, folderID, name)
			if metaErr != nil {
				return metaErr
			}
			if remote != nil {
				older, cmpErr := store.IsRemoteOlder(localPath, remote.ModifiedTime)
				if cmpErr == nil && !older {
					log.Printf("[CloudBackup] Remote copy of %s is current, skipping", name)
					summary.Skipped++
					continue
				}
			}
		}

		uploaded, upErr := store.Upload(ctx, localPath, folderID, name)
		if upErr != nil {
			allOK = false
			log.Printf("[CloudBackup] Upload of %s failed: %v", name, upErr)
			if errors.Is(upErr, ErrAuth) {
				return upErr
			}
			continue
		}

		summary.Uploaded++
		rec.CloudBackupStatus.UploadedFiles = upsertUpload(rec.CloudBackupStatus.UploadedFiles, progress.UploadRecord{
			Name:         uploaded.Name,
			RemoteID:     uploaded.ID,
			ModifiedTime: uploaded.ModifiedTime,
			UploadedOn:   progress.Now(),
		})
	}

	if allOK {
		rec.CloudBackupStatus.LastSuccessOn = progress.Now()
	}

	return pstore.Save(rec)
}

func upsertUpload(records []progress.UploadRecord, rec progress.UploadRecord) []progress.UploadRecord {
	for i := range records {
		if records[i].Name == rec.Name {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}
