package backup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/store"
	"tokobengkel/backend/internal/xid"
)

// Store is the subset of the repository the backup manager needs.
type Store interface {
	ExportCompanyData(ctx context.Context, companyID string) (*domain.DataExport, error)
	ExportSystemData(ctx context.Context) (*domain.DataExport, error)
	CreateBackup(ctx context.Context, backup domain.Backup) (*domain.Backup, error)
	UpdateBackupStatus(ctx context.Context, backupID string, status string, sizeBytes int64) error
	GetBackup(ctx context.Context, backupID string) (*domain.Backup, error)
	ListBackups(ctx context.Context, scope string, targetID string, limit int) ([]domain.Backup, error)
}

// Manager writes backup archives to local disk and tracks their records.
// An archive is a zip holding manifest.json and data.json; data.json is the
// full DataExport for the scope at the time the backup was taken.
type Manager struct {
	repo Store
	dir  string
}

type manifest struct {
	BackupID     string    `json:"backup_id"`
	Scope        string    `json:"scope"`
	TargetID     string    `json:"target_id,omitempty"`
	TotalRecords int64     `json:"total_records"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewManager(repo Store, dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	return &Manager{repo: repo, dir: dir}, nil
}

// Create exports the scope's data and writes it as a zip archive. The backup
// record is created pending before the file is written and flipped to
// completed or failed afterward, so a crash mid-write leaves an honest record.
func (m *Manager) Create(ctx context.Context, scope string, targetID string, createdBy string) (*domain.Backup, error) {
	var export *domain.DataExport
	var err error
	switch scope {
	case domain.ScopeCompany:
		if targetID == "" {
			return nil, fmt.Errorf("%w: company backup requires a target", store.ErrInvalidInput)
		}
		export, err = m.repo.ExportCompanyData(ctx, targetID)
	case domain.ScopeSystem:
		export, err = m.repo.ExportSystemData(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown backup scope %q", store.ErrInvalidInput, scope)
	}
	if err != nil {
		return nil, fmt.Errorf("export %s data: %w", scope, err)
	}

	now := time.Now().UTC()
	fileName := archiveName(scope, targetID, now)
	record, err := m.repo.CreateBackup(ctx, domain.Backup{
		ID:        xid.New("bak"),
		Scope:     scope,
		TargetID:  targetID,
		FileName:  fileName,
		Status:    domain.BackupStatusPending,
		CreatedBy: createdBy,
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	size, err := m.writeArchive(record, export)
	if err != nil {
		if uerr := m.repo.UpdateBackupStatus(ctx, record.ID, domain.BackupStatusFailed, 0); uerr != nil {
			log.Printf("[backup] WARN: mark backup %s failed: %v", record.ID, uerr)
		}
		return nil, fmt.Errorf("write backup archive: %w", err)
	}
	if err := m.repo.UpdateBackupStatus(ctx, record.ID, domain.BackupStatusCompleted, size); err != nil {
		return nil, fmt.Errorf("finalize backup record: %w", err)
	}

	record.Status = domain.BackupStatusCompleted
	record.FileSizeBytes = size
	log.Printf("[backup] created %s scope=%s target=%s records=%d bytes=%d",
		record.ID, scope, targetID, export.TotalRecords(), size)
	return record, nil
}

func (m *Manager) writeArchive(record *domain.Backup, export *domain.DataExport) (int64, error) {
	path := filepath.Join(m.dir, record.FileName)
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)

	mw, err := zw.Create("manifest.json")
	if err != nil {
		return 0, err
	}
	if err := json.NewEncoder(mw).Encode(manifest{
		BackupID:     record.ID,
		Scope:        record.Scope,
		TargetID:     record.TargetID,
		TotalRecords: export.TotalRecords(),
		CreatedAt:    record.CreatedAt,
	}); err != nil {
		return 0, err
	}

	dw, err := zw.Create("data.json")
	if err != nil {
		return 0, err
	}
	if err := json.NewEncoder(dw).Encode(export); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Verify checks that a backup is usable as the safety net for a destructive
// operation on exactly the given scope and target. A completed backup for a
// different company, or a system backup offered for a company reset, does
// not count.
func (m *Manager) Verify(ctx context.Context, backupID string, scope string, targetID string) (*domain.Backup, error) {
	record, err := m.repo.GetBackup(ctx, backupID)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.BackupStatusCompleted {
		return nil, fmt.Errorf("%w: backup %s is %s", store.ErrPreconditionFailed, backupID, record.Status)
	}
	if record.Scope != scope || record.TargetID != targetID {
		return nil, fmt.Errorf("%w: backup %s covers scope=%s target=%s", store.ErrPreconditionFailed, backupID, record.Scope, record.TargetID)
	}
	if _, err := os.Stat(filepath.Join(m.dir, record.FileName)); err != nil {
		return nil, fmt.Errorf("%w: backup archive missing: %v", store.ErrPreconditionFailed, err)
	}
	return record, nil
}

// Open returns the archive file for streaming to a client. The caller closes
// the reader.
func (m *Manager) Open(ctx context.Context, backupID string) (*domain.Backup, io.ReadCloser, error) {
	record, err := m.repo.GetBackup(ctx, backupID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(m.dir, record.FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: backup archive missing", store.ErrNotFound)
		}
		return nil, nil, err
	}
	return record, f, nil
}

// Load reads the archived data export back out for a restore.
func (m *Manager) Load(ctx context.Context, backupID string) (*domain.DataExport, error) {
	record, err := m.repo.GetBackup(ctx, backupID)
	if err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(filepath.Join(m.dir, record.FileName))
	if err != nil {
		return nil, fmt.Errorf("open backup archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	for _, zf := range zr.File {
		if zf.Name != "data.json" {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()

		var export domain.DataExport
		if err := json.NewDecoder(rc).Decode(&export); err != nil {
			return nil, fmt.Errorf("decode backup data: %w", err)
		}
		return &export, nil
	}
	return nil, fmt.Errorf("%w: data.json missing from archive", store.ErrPreconditionFailed)
}

// List returns the scope's backup records, newest first.
func (m *Manager) List(ctx context.Context, scope string, targetID string, limit int) ([]domain.Backup, error) {
	return m.repo.ListBackups(ctx, scope, targetID, limit)
}

// Delete removes the archive file for a backup; the record stays for audit.
func (m *Manager) Delete(record *domain.Backup) error {
	err := os.Remove(filepath.Join(m.dir, record.FileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func archiveName(scope string, targetID string, at time.Time) string {
	stamp := at.Format("20060102-150405")
	if scope == domain.ScopeSystem {
		return fmt.Sprintf("system-%s-%s.zip", stamp, xid.Short())
	}
	return fmt.Sprintf("company-%s-%s-%s.zip", targetID, stamp, xid.Short())
}
