package store

import (
	"context"
	"errors"
	"time"

	"tokobengkel/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrResetInProgress    = errors.New("reset already in progress")
	ErrTransactionFailed  = errors.New("reset transaction failed")
)

// PurgeResult reports what a destructive transaction actually removed.
// RowCounts is authoritative; FilePaths lists orphaned filesystem artifacts
// (product images, repair photos) for the background cleanup worker.
type PurgeResult struct {
	RowCounts map[string]int64
	FilePaths []string
}

type Repository interface {
	CreateCompany(ctx context.Context, company domain.Company) (*domain.Company, error)
	GetCompany(ctx context.Context, companyID string) (*domain.Company, error)
	ListCompanies(ctx context.Context) ([]domain.Company, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context, companyID string, limit int) ([]domain.Product, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	CreateSwap(ctx context.Context, swap domain.Swap) (*domain.Swap, error)
	CreateRepair(ctx context.Context, repair domain.Repair) (*domain.Repair, error)
	ListRepairs(ctx context.Context, companyID string, status string, limit int) ([]domain.Repair, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)
	CreateSMSLog(ctx context.Context, entry domain.SMSLog) (*domain.SMSLog, error)
	CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error
	ListActivityLogs(ctx context.Context, companyID string, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error)

	// Global catalogs and settings sit outside every purge scope.
	CreateCatalogItem(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error)
	ListCatalogItems(ctx context.Context, kind string) ([]domain.CatalogItem, error)
	SetSetting(ctx context.Context, key string, value string) (*domain.Setting, error)
	GetSetting(ctx context.Context, key string) (*domain.Setting, error)
	ListSettings(ctx context.Context) ([]domain.Setting, error)

	// CountCompanyRows and CountSystemRows back the dry-run estimator.
	// Both are pure reads: no locks held after return, no mutation.
	CountCompanyRows(ctx context.Context, companyID string) (map[string]int64, error)
	CountSystemRows(ctx context.Context) (map[string]int64, error)

	// ExportCompanyData / ExportSystemData snapshot the rows a reset would
	// remove; the backup manager serializes the result into an archive.
	ExportCompanyData(ctx context.Context, companyID string) (*domain.DataExport, error)
	ExportSystemData(ctx context.Context) (*domain.DataExport, error)

	// PurgeCompanyData and PurgeSystemData run the destructive delete as one
	// atomic transaction honoring the preserve allow-list: the company row
	// and global catalogs survive a company purge; system admins, settings,
	// catalogs, reset actions, and backup records survive a system purge.
	PurgeCompanyData(ctx context.Context, companyID string) (*PurgeResult, error)
	PurgeSystemData(ctx context.Context) (*PurgeResult, error)

	// ImportCompanyData replays an export against live data. With merge=false
	// the caller is expected to have purged first; with merge=true rows are
	// appended and colliding ids are reissued, which may duplicate records.
	ImportCompanyData(ctx context.Context, companyID string, export *domain.DataExport, merge bool) (int64, int, error)

	// ReplaceCompanyData purges the company's rows and replays the export in
	// one transaction, so an overwrite restore cannot strand the company with
	// no data when the import half fails.
	ReplaceCompanyData(ctx context.Context, companyID string, export *domain.DataExport) (int64, int, error)

	CreateResetAction(ctx context.Context, action domain.ResetAction) (*domain.ResetAction, error)
	UpdateResetAction(ctx context.Context, action domain.ResetAction) (*domain.ResetAction, error)
	GetResetAction(ctx context.Context, actionID string) (*domain.ResetAction, error)
	ListResetActions(ctx context.Context, scope string, limit int) ([]domain.ResetAction, error)

	CreateBackup(ctx context.Context, backup domain.Backup) (*domain.Backup, error)
	UpdateBackupStatus(ctx context.Context, backupID string, status string, sizeBytes int64) error
	GetBackup(ctx context.Context, backupID string) (*domain.Backup, error)
	ListBackups(ctx context.Context, scope string, targetID string, limit int) ([]domain.Backup, error)

	CreateRestorePoint(ctx context.Context, point domain.RestorePoint) (*domain.RestorePoint, error)
	GetRestorePoint(ctx context.Context, pointID string) (*domain.RestorePoint, error)
	ListRestorePoints(ctx context.Context, companyID string, limit int) ([]domain.RestorePoint, error)
	DeleteRestorePoint(ctx context.Context, pointID string) error
	MarkRestorePointApplied(ctx context.Context, pointID string, at time.Time) (*domain.RestorePoint, error)
}
