package domain

import (
	"fmt"
	"time"
)

type Company struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type CompanyCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// UserAccount is an internal persistence model for auth credentials.
// CompanyID is empty for system administrators.
type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	CompanyID string    `json:"company_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleSystemAdmin  = "system_admin"
	RoleCompanyAdmin = "company_admin"
)

type Product struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Brand      string    `json:"brand"`
	PriceCents int64     `json:"price_cents"`
	StockQty   int       `json:"stock_qty"`
	ImagePath  string    `json:"image_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	CompanyID  string `json:"company_id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Brand      string `json:"brand"`
	PriceCents int64  `json:"price_cents"`
	StockQty   int    `json:"stock_qty"`
	ImagePath  string `json:"image_path,omitempty"`
}

type Sale struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	ProductID  string    `json:"product_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Qty        int       `json:"qty"`
	TotalCents int64     `json:"total_cents"`
	SoldBy     string    `json:"sold_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type Swap struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"company_id"`
	GivenDevice    string    `json:"given_device"`
	ReceivedDevice string    `json:"received_device"`
	TopUpCents     int64     `json:"top_up_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

type Repair struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	CustomerID  string     `json:"customer_id,omitempty"`
	Device      string     `json:"device"`
	Fault       string     `json:"fault"`
	Status      string     `json:"status"`
	CostCents   int64      `json:"cost_cents"`
	PhotoPath   string     `json:"photo_path,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const (
	RepairStatusReceived  = "received"
	RepairStatusInRepair  = "in_repair"
	RepairStatusCompleted = "completed"
	RepairStatusDelivered = "delivered"
)

type Customer struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

type Payment struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

type SMSLog struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"company_id"`
	Recipient  string    `json:"recipient"`
	Message    string    `json:"message"`
	CostCredit int       `json:"cost_credit"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type ActivityLog struct {
	ID            string    `json:"id"`
	CompanyID     string    `json:"company_id,omitempty"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// Scope identifies whether a destructive or restore operation targets a
// single company or the whole platform.
const (
	ScopeCompany = "company"
	ScopeSystem  = "system"
)

const (
	ResetModeDryRun  = "dry_run"
	ResetModeExecute = "execute"
)

const (
	ResetStatusPending   = "pending"
	ResetStatusRunning   = "running"
	ResetStatusCompleted = "completed"
	ResetStatusFailed    = "failed"
)

// ResetAction is the append-only audit record for every attempted
// destructive operation, dry-run or execute.
type ResetAction struct {
	ID                string           `json:"id"`
	Scope             string           `json:"scope"`
	TargetID          string           `json:"target_id,omitempty"`
	Mode              string           `json:"mode"`
	Status            string           `json:"status"`
	RowCounts         map[string]int64 `json:"row_counts,omitempty"`
	TotalAffectedRows int64            `json:"total_affected_rows"`
	BackupReference   string           `json:"backup_reference,omitempty"`
	RequestedBy       string           `json:"requested_by"`
	Error             string           `json:"error,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

type Backup struct {
	ID            string    `json:"id"`
	Scope         string    `json:"scope"`
	TargetID      string    `json:"target_id,omitempty"`
	FileName      string    `json:"file_name"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	Status        string    `json:"status"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	BackupStatusPending   = "pending"
	BackupStatusCompleted = "completed"
	BackupStatusFailed    = "failed"
)

type RestorePoint struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	BackupID     string     `json:"backup_id"`
	TotalRecords int64      `json:"total_records"`
	RestoreCount int        `json:"restore_count"`
	RestoredAt   *time.Time `json:"restored_at,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
}

const (
	RestoreTypeOverwrite = "overwrite"
	RestoreTypeMerge     = "merge"
)

// Transactional table names, in the order they are reported and purged.
// Child tables come before their parents so deletes respect foreign keys.
const (
	TableProducts     = "products"
	TableSales        = "sales"
	TableSwaps        = "swaps"
	TableRepairs      = "repairs"
	TableCustomers    = "customers"
	TablePayments     = "payments"
	TableSMSLogs      = "sms_logs"
	TableActivityLogs = "activity_logs"
	TableCompanies    = "companies"
	TableUsers        = "users"
)

// CompanyTables lists every company-scoped transactional table counted by a
// dry run and purged by a company reset.
func CompanyTables() []string {
	return []string{
		TableSales, TableSwaps, TableRepairs, TablePayments,
		TableSMSLogs, TableActivityLogs, TableProducts, TableCustomers,
	}
}

// SystemTables adds the tables only a system-wide reset touches: company rows
// themselves and company-bound user accounts. System admins, settings, and
// global catalogs are never counted because they are never deleted.
func SystemTables() []string {
	return append(CompanyTables(), TableUsers, TableCompanies)
}

// ConfirmPhrase builds the exact phrase an operator must type to authorize a
// reset. Comparison elsewhere is byte-for-byte; no trimming, no case folding.
func ConfirmPhrase(scope string, targetID string) string {
	if scope == ScopeSystem {
		return "RESET SYSTEM"
	}
	return fmt.Sprintf("RESET COMPANY %s", targetID)
}

// DataExport is the backup artifact payload: a full snapshot of the rows a
// reset would remove, systemwide or for one company.
type DataExport struct {
	Scope        string        `json:"scope"`
	TargetID     string        `json:"target_id,omitempty"`
	ExportedAt   time.Time     `json:"exported_at"`
	Companies    []Company     `json:"companies,omitempty"`
	Users        []UserAccount `json:"users,omitempty"`
	Products     []Product     `json:"products,omitempty"`
	Sales        []Sale        `json:"sales,omitempty"`
	Swaps        []Swap        `json:"swaps,omitempty"`
	Repairs      []Repair      `json:"repairs,omitempty"`
	Customers    []Customer    `json:"customers,omitempty"`
	Payments     []Payment     `json:"payments,omitempty"`
	SMSLogs      []SMSLog      `json:"sms_logs,omitempty"`
	ActivityLogs []ActivityLog `json:"activity_logs,omitempty"`
}

func (e DataExport) TotalRecords() int64 {
	return int64(len(e.Companies) + len(e.Users) + len(e.Products) +
		len(e.Sales) + len(e.Swaps) + len(e.Repairs) + len(e.Customers) +
		len(e.Payments) + len(e.SMSLogs) + len(e.ActivityLogs))
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	CompanyID   string `json:"company_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username  string
	Role      string
	CompanyID string
}

type ResetRequest struct {
	DryRun          bool   `json:"dry_run"`
	DeleteFiles     bool   `json:"delete_files,omitempty"`
	ConfirmCode     string `json:"confirm_code,omitempty"`
	BackupReference string `json:"backup_reference,omitempty"`
	AdminPassword   string `json:"admin_password,omitempty"`
}

// DryRunResult and ExecuteResult are deliberately distinct response shapes:
// a dry run carries per-table counts, an execute carries only the
// authoritative post-hoc total.
type DryRunResult struct {
	Success   bool             `json:"success"`
	DryRun    bool             `json:"dry_run"`
	RowCounts map[string]int64 `json:"row_counts"`
	TotalRows int64            `json:"total_rows"`
	ActionID  string           `json:"action_id"`
}

type ExecuteResult struct {
	Success           bool   `json:"success"`
	DryRun            bool   `json:"dry_run"`
	TotalAffectedRows int64  `json:"total_affected_rows"`
	ActionID          string `json:"action_id"`
}

type BackupCreateResponse struct {
	Success  bool   `json:"success"`
	BackupID string `json:"backup_id"`
	FileName string `json:"file_name"`
	SizeByte int64  `json:"file_size"`
}

type BackupListItem struct {
	ID        string `json:"id"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	CreatedAt string `json:"created_at"`
}

type BackupListResponse struct {
	Success bool             `json:"success"`
	Backups []BackupListItem `json:"backups"`
}

type RestorePointCreateRequest struct {
	CompanyID   string `json:"company_id"`
	BackupID    string `json:"backup_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type RestorePointCreateResponse struct {
	Success      bool         `json:"success"`
	RestorePoint RestorePoint `json:"restore_point"`
}

type RestoreRequest struct {
	RestorePointID string `json:"restore_point_id"`
	CompanyID      string `json:"company_id"`
	RestoreType    string `json:"restore_type"`
}

type RestoreResponse struct {
	Success         bool   `json:"success"`
	RecordsRestored int64  `json:"records_restored"`
	TablesRestored  int    `json:"tables_restored"`
	MergeWarning    string `json:"merge_warning,omitempty"`
}

type RestorePointDeleteRequest struct {
	RestorePointID string `json:"restore_point_id"`
	CompanyID      string `json:"company_id"`
}

type SaleCreateRequest struct {
	CompanyID  string `json:"company_id"`
	ProductID  string `json:"product_id"`
	CustomerID string `json:"customer_id,omitempty"`
	Qty        int    `json:"qty"`
	TotalCents int64  `json:"total_cents"`
}

type SwapCreateRequest struct {
	CompanyID      string `json:"company_id"`
	GivenDevice    string `json:"given_device"`
	ReceivedDevice string `json:"received_device"`
	TopUpCents     int64  `json:"top_up_cents"`
}

type RepairCreateRequest struct {
	CompanyID  string `json:"company_id"`
	CustomerID string `json:"customer_id,omitempty"`
	Device     string `json:"device"`
	Fault      string `json:"fault"`
	CostCents  int64  `json:"cost_cents"`
	PhotoPath  string `json:"photo_path,omitempty"`
}

type CustomerCreateRequest struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
}

type PaymentCreateRequest struct {
	CompanyID   string `json:"company_id"`
	ReferenceID string `json:"reference_id,omitempty"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
}

type SMSLogCreateRequest struct {
	CompanyID  string `json:"company_id"`
	Recipient  string `json:"recipient"`
	Message    string `json:"message"`
	CostCredit int    `json:"cost_credit"`
}

// CatalogItem is a global catalog entry shared by every company. Catalog
// rows are never part of any purge scope.
type CatalogItem struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	CatalogKindCategory    = "category"
	CatalogKindBrand       = "brand"
	CatalogKindSubcategory = "subcategory"
)

type CatalogItemCreateRequest struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Setting is a platform-wide key/value pair. Settings survive a system
// reset.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SettingUpdateRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
