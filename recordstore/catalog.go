package recordstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
)

// FileExtension is appended to a database id to form the store's filename.
const FileExtension = ".sqlite"

var databaseIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// RecordInfo describes a persisted store available for selection.
type RecordInfo struct {
	DatabaseID string    `json:"databaseId"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// ValidDatabaseID rejects anything that could escape the data folder.
func ValidDatabaseID(id string) bool {
	return databaseIDPattern.MatchString(id)
}

// DatabaseID strips the store extension from a filename.
func DatabaseID(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), FileExtension)
}

// FilePath resolves a database id inside dir.
func FilePath(dir, databaseID string) (string, error) {
	if !ValidDatabaseID(databaseID) {
		return "", fmt.Errorf("%w: %q", autherrors.ErrInvalidDatabaseID, databaseID)
	}
	return filepath.Join(dir, databaseID+FileExtension), nil
}

// List returns the stores in dir, newest first. A missing dir is an empty catalog.
func List(dir string) ([]RecordInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []RecordInfo{}, nil
		}
		return nil, fmt.Errorf("[recordstore List] %s: %w", dir, err)
	}

	records := make([]RecordInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExtension) {
			continue
		}
		id := DatabaseID(e.Name())
		if !ValidDatabaseID(id) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		records = append(records, RecordInfo{
			DatabaseID: id,
			Filename:   e.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ModifiedAt.After(records[j].ModifiedAt)
	})
	return records, nil
}
