package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mrlokans/librarian/internal/entities"
)

// Archiver writes batches of audit events to JSON files before retention
// cleanup removes them from the database.
type Archiver struct {
	Dir string
}

func NewArchiver(dir string) *Archiver {
	return &Archiver{
		Dir: dir,
	}
}

// archiveFile is the on-disk layout of one archive batch.
type archiveFile struct {
	ArchivedAt time.Time             `json:"archived_at"`
	OlderThan  time.Time             `json:"older_than"`
	Events     []entities.AuditEvent `json:"events"`
}

// SaveEvents stores events in a new file named <date>-<uuid>.json and returns
// the file name.
func (a *Archiver) SaveEvents(events []entities.AuditEvent, olderThan time.Time) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	now := time.Now().UTC()
	filename := fmt.Sprintf("%s-%s.json", now.Format("20060102"), uuid.New().String())
	path := filepath.Join(a.Dir, filename)

	data, err := json.MarshalIndent(archiveFile{
		ArchivedAt: now,
		OlderThan:  olderThan,
		Events:     events,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit events: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}

	return filename, nil
}
