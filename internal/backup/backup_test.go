package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/store"
	"tokobengkel/backend/internal/store/memory"
)

func newTestManager(t *testing.T) (*Manager, *memory.Store, string) {
	t.Helper()
	repo := memory.New()
	dir := t.TempDir()
	mgr, err := NewManager(repo, dir)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return mgr, repo, dir
}

func seedCompany(t *testing.T, repo *memory.Store, products int) domain.Company {
	t.Helper()
	ctx := context.Background()
	company, err := repo.CreateCompany(ctx, domain.Company{Name: "Bengkel Uji"})
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	for i := 0; i < products; i++ {
		if _, err := repo.CreateProduct(ctx, domain.Product{
			CompanyID:  company.ID,
			Name:       "Part",
			PriceCents: 1000,
		}); err != nil {
			t.Fatalf("create product: %v", err)
		}
	}
	return *company
}

func TestCreateWritesArchiveAndRecord(t *testing.T) {
	mgr, repo, dir := newTestManager(t)
	company := seedCompany(t, repo, 3)
	ctx := context.Background()

	record, err := mgr.Create(ctx, domain.ScopeCompany, company.ID, "root")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.Status != domain.BackupStatusCompleted {
		t.Fatalf("expected completed status, got %s", record.Status)
	}
	if record.FileSizeBytes < 1 {
		t.Fatalf("expected nonzero archive size")
	}

	info, err := os.Stat(filepath.Join(dir, record.FileName))
	if err != nil {
		t.Fatalf("archive missing: %v", err)
	}
	if info.Size() != record.FileSizeBytes {
		t.Fatalf("recorded size %d, file size %d", record.FileSizeBytes, info.Size())
	}
}

func TestLoadRoundTripsExport(t *testing.T) {
	mgr, repo, _ := newTestManager(t)
	company := seedCompany(t, repo, 5)
	ctx := context.Background()

	record, err := mgr.Create(ctx, domain.ScopeCompany, company.ID, "root")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	export, err := mgr.Load(ctx, record.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if export.Scope != domain.ScopeCompany || export.TargetID != company.ID {
		t.Fatalf("wrong scope in archive: %s/%s", export.Scope, export.TargetID)
	}
	if len(export.Products) != 5 || len(export.Companies) != 1 {
		t.Fatalf("unexpected archive contents: %d products, %d companies", len(export.Products), len(export.Companies))
	}
}

func TestVerifyEnforcesExactScopeAndTarget(t *testing.T) {
	mgr, repo, dir := newTestManager(t)
	company := seedCompany(t, repo, 1)
	other := seedCompany(t, repo, 1)
	ctx := context.Background()

	record, err := mgr.Create(ctx, domain.ScopeCompany, company.ID, "root")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := mgr.Verify(ctx, record.ID, domain.ScopeCompany, company.ID); err != nil {
		t.Fatalf("verify own scope: %v", err)
	}
	if _, err := mgr.Verify(ctx, record.ID, domain.ScopeCompany, other.ID); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure for other company, got %v", err)
	}
	if _, err := mgr.Verify(ctx, record.ID, domain.ScopeSystem, ""); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure for system scope, got %v", err)
	}

	// A completed record whose file vanished is no safety net.
	if err := os.Remove(filepath.Join(dir, record.FileName)); err != nil {
		t.Fatalf("remove archive: %v", err)
	}
	if _, err := mgr.Verify(ctx, record.ID, domain.ScopeCompany, company.ID); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure for missing archive, got %v", err)
	}
}

func TestVerifyRejectsPendingBackup(t *testing.T) {
	mgr, repo, _ := newTestManager(t)
	ctx := context.Background()

	record, err := repo.CreateBackup(ctx, domain.Backup{
		Scope:    domain.ScopeCompany,
		TargetID: "cmp-x",
		FileName: "half-written.zip",
		Status:   domain.BackupStatusPending,
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if _, err := mgr.Verify(ctx, record.ID, domain.ScopeCompany, "cmp-x"); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure for pending backup, got %v", err)
	}
}

func TestOpenStreamsArchive(t *testing.T) {
	mgr, repo, _ := newTestManager(t)
	company := seedCompany(t, repo, 1)
	ctx := context.Background()

	record, err := mgr.Create(ctx, domain.ScopeCompany, company.ID, "root")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, reader, err := mgr.Open(ctx, record.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if int64(len(data)) != got.FileSizeBytes {
		t.Fatalf("streamed %d bytes, record says %d", len(data), got.FileSizeBytes)
	}
}

func TestDeleteRemovesArchiveKeepsRecord(t *testing.T) {
	mgr, repo, dir := newTestManager(t)
	company := seedCompany(t, repo, 2)
	ctx := context.Background()

	record, err := mgr.Create(ctx, domain.ScopeCompany, company.ID, "root")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := mgr.Delete(record); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, record.FileName)); !os.IsNotExist(err) {
		t.Fatalf("archive should be gone, stat err=%v", err)
	}
	if _, err := repo.GetBackup(ctx, record.ID); err != nil {
		t.Fatalf("record must survive archive deletion: %v", err)
	}

	// Without the file the backup no longer authorizes a reset.
	if _, err := mgr.Verify(ctx, record.ID, domain.ScopeCompany, company.ID); !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure after delete, got %v", err)
	}

	// Deleting again is a no-op.
	if err := mgr.Delete(record); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestCreateRejectsUnknownScope(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	if _, err := mgr.Create(context.Background(), "tenant", "x", "root"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := mgr.Create(context.Background(), domain.ScopeCompany, "", "root"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty target, got %v", err)
	}
}
