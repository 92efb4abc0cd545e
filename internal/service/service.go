package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokobengkel/backend/internal/backup"
	"tokobengkel/backend/internal/cache"
	"tokobengkel/backend/internal/cleanup"
	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/store"
	"tokobengkel/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// resetGuard serializes destructive executes per scope/target. Only one
// execute may run at a time for a given target; a second caller gets
// ErrResetInProgress instead of queueing behind the first.
type resetGuard struct {
	mu     sync.Mutex
	active map[string]bool
}

func newResetGuard() *resetGuard {
	return &resetGuard{active: make(map[string]bool)}
}

func (g *resetGuard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[key] {
		return false
	}
	g.active[key] = true
	return true
}

func (g *resetGuard) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

type Service struct {
	repo        store.Repository
	estimates   cache.EstimateCache
	backups     *backup.Manager
	cleaner     *cleanup.Worker
	estimateTTL time.Duration
	guard       *resetGuard
}

func New(repo store.Repository, estimates cache.EstimateCache, backups *backup.Manager, cleaner *cleanup.Worker, estimateTTL time.Duration) *Service {
	if estimateTTL <= 0 {
		estimateTTL = 30 * time.Second
	}
	return &Service{
		repo:        repo,
		estimates:   estimates,
		backups:     backups,
		cleaner:     cleaner,
		estimateTTL: estimateTTL,
		guard:       newResetGuard(),
	}
}

func guardKey(scope string, targetID string) string {
	return scope + ":" + targetID
}

func estimateKey(scope string, targetID string) string {
	return "estimate:" + scope + ":" + targetID
}

// Estimate returns per-table row counts for what a reset of the given scope
// would remove. Counts are advisory: they may be cached briefly and data can
// change between the estimate and the execute. Estimating never mutates.
func (s *Service) Estimate(ctx context.Context, scope string, targetID string) (map[string]int64, error) {
	key := estimateKey(scope, targetID)
	if counts, ok, err := s.estimates.Get(ctx, key); err == nil && ok {
		return counts, nil
	} else if err != nil {
		log.Printf("[service] WARN: estimate cache read %s: %v", key, err)
	}

	var counts map[string]int64
	var err error
	switch scope {
	case domain.ScopeCompany:
		counts, err = s.repo.CountCompanyRows(ctx, targetID)
	case domain.ScopeSystem:
		counts, err = s.repo.CountSystemRows(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", store.ErrInvalidInput, scope)
	}
	if err != nil {
		return nil, err
	}

	if err := s.estimates.Set(ctx, key, counts, s.estimateTTL); err != nil {
		log.Printf("[service] WARN: estimate cache write %s: %v", key, err)
	}
	return counts, nil
}

// DryRunReset estimates a reset and records the attempt in the audit trail
// without touching any data.
func (s *Service) DryRunReset(ctx context.Context, scope string, targetID string) (domain.DryRunResult, error) {
	counts, err := s.Estimate(ctx, scope, targetID)
	if err != nil {
		return domain.DryRunResult{}, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	actor, _ := ActorFromContext(ctx)
	now := time.Now().UTC()
	action, err := s.repo.CreateResetAction(ctx, domain.ResetAction{
		ID:                xid.New("rst"),
		Scope:             scope,
		TargetID:          targetID,
		Mode:              domain.ResetModeDryRun,
		Status:            domain.ResetStatusCompleted,
		RowCounts:         counts,
		TotalAffectedRows: total,
		RequestedBy:       actor.Username,
		CreatedAt:         now,
		CompletedAt:       &now,
	})
	if err != nil {
		return domain.DryRunResult{}, err
	}

	return domain.DryRunResult{
		Success:   true,
		DryRun:    true,
		RowCounts: counts,
		TotalRows: total,
		ActionID:  action.ID,
	}, nil
}

// ExecuteReset runs the destructive delete after every gate passes: a
// completed backup covering exactly this scope and target, the confirmation
// phrase typed byte-for-byte, and for system scope the caller's own password.
// The reported total comes from the delete transaction itself, not from any
// earlier estimate.
func (s *Service) ExecuteReset(ctx context.Context, scope string, targetID string, req domain.ResetRequest) (domain.ExecuteResult, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleSystemAdmin {
		return domain.ExecuteResult{}, fmt.Errorf("%w: system admin role required", store.ErrInvalidCredentials)
	}

	if scope == domain.ScopeCompany {
		if _, err := s.repo.GetCompany(ctx, targetID); err != nil {
			return domain.ExecuteResult{}, err
		}
	}

	if strings.TrimSpace(req.BackupReference) == "" {
		return domain.ExecuteResult{}, fmt.Errorf("%w: a completed backup is required before a reset", store.ErrPreconditionFailed)
	}
	backupRecord, err := s.backups.Verify(ctx, req.BackupReference, scope, targetID)
	if err != nil {
		return domain.ExecuteResult{}, err
	}

	// Byte-for-byte comparison. No trimming, no case folding.
	if req.ConfirmCode != domain.ConfirmPhrase(scope, targetID) {
		return domain.ExecuteResult{}, fmt.Errorf("%w: confirmation phrase does not match", store.ErrPreconditionFailed)
	}

	if scope == domain.ScopeSystem {
		if err := s.verifyAdminPassword(ctx, actor.Username, req.AdminPassword); err != nil {
			return domain.ExecuteResult{}, err
		}
	}

	key := guardKey(scope, targetID)
	if !s.guard.acquire(key) {
		return domain.ExecuteResult{}, store.ErrResetInProgress
	}
	defer s.guard.release(key)

	now := time.Now().UTC()
	action, err := s.repo.CreateResetAction(ctx, domain.ResetAction{
		ID:              xid.New("rst"),
		Scope:           scope,
		TargetID:        targetID,
		Mode:            domain.ResetModeExecute,
		Status:          domain.ResetStatusPending,
		BackupReference: backupRecord.ID,
		RequestedBy:     actor.Username,
		CreatedAt:       now,
	})
	if err != nil {
		return domain.ExecuteResult{}, err
	}

	action.Status = domain.ResetStatusRunning
	if action, err = s.repo.UpdateResetAction(ctx, *action); err != nil {
		return domain.ExecuteResult{}, err
	}

	var purge *store.PurgeResult
	var companyIDs []string
	switch scope {
	case domain.ScopeCompany:
		purge, err = s.repo.PurgeCompanyData(ctx, targetID)
	case domain.ScopeSystem:
		// Snapshot company ids before the purge removes them so their
		// cached estimates can be dropped as well.
		if companies, lerr := s.repo.ListCompanies(ctx); lerr == nil {
			for _, c := range companies {
				companyIDs = append(companyIDs, c.ID)
			}
		}
		purge, err = s.repo.PurgeSystemData(ctx)
	default:
		err = fmt.Errorf("%w: unknown scope %q", store.ErrInvalidInput, scope)
	}
	if err != nil {
		action.Status = domain.ResetStatusFailed
		action.Error = err.Error()
		if _, uerr := s.repo.UpdateResetAction(ctx, *action); uerr != nil {
			log.Printf("[service] WARN: mark reset action %s failed: %v", action.ID, uerr)
		}
		// The action id goes back with the error so the caller can look up
		// what failed.
		return domain.ExecuteResult{ActionID: action.ID}, fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}

	var total int64
	for _, n := range purge.RowCounts {
		total += n
	}

	completed := time.Now().UTC()
	action.Status = domain.ResetStatusCompleted
	action.RowCounts = purge.RowCounts
	action.TotalAffectedRows = total
	action.CompletedAt = &completed
	updated, err := s.repo.UpdateResetAction(ctx, *action)
	if err != nil {
		return domain.ExecuteResult{ActionID: action.ID}, err
	}
	action = updated

	if err := s.estimates.Invalidate(ctx, estimateKey(scope, targetID)); err != nil {
		log.Printf("[service] WARN: invalidate estimate %s: %v", estimateKey(scope, targetID), err)
	}
	for _, id := range companyIDs {
		if err := s.estimates.Invalidate(ctx, estimateKey(domain.ScopeCompany, id)); err != nil {
			log.Printf("[service] WARN: invalidate estimate %s: %v", estimateKey(domain.ScopeCompany, id), err)
		}
	}

	// File removal happens strictly after the delete transaction committed,
	// so a rollback never loses uploads.
	if req.DeleteFiles && len(purge.FilePaths) > 0 {
		s.cleaner.Enqueue(cleanup.Job{ActionID: action.ID, Paths: purge.FilePaths})
	}

	log.Printf("[service] reset executed action=%s scope=%s target=%s rows=%d", action.ID, scope, targetID, total)
	return domain.ExecuteResult{
		Success:           true,
		DryRun:            false,
		TotalAffectedRows: total,
		ActionID:          action.ID,
	}, nil
}

func (s *Service) verifyAdminPassword(ctx context.Context, username string, password string) error {
	if password == "" {
		return fmt.Errorf("%w: admin password required for system reset", store.ErrInvalidCredentials)
	}
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return store.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return store.ErrInvalidCredentials
	}
	return nil
}

func (s *Service) ListResetActions(ctx context.Context, scope string, limit int) ([]domain.ResetAction, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListResetActions(ctx, scope, limit)
}

func (s *Service) GetResetAction(ctx context.Context, actionID string) (domain.ResetAction, error) {
	action, err := s.repo.GetResetAction(ctx, actionID)
	if err != nil {
		return domain.ResetAction{}, err
	}
	return *action, nil
}

// CreateBackup snapshots a scope into an archive and returns its record.
func (s *Service) CreateBackup(ctx context.Context, scope string, targetID string) (domain.BackupCreateResponse, error) {
	if scope == domain.ScopeCompany {
		if _, err := s.repo.GetCompany(ctx, targetID); err != nil {
			return domain.BackupCreateResponse{}, err
		}
	}
	actor, _ := ActorFromContext(ctx)
	record, err := s.backups.Create(ctx, scope, targetID, actor.Username)
	if err != nil {
		return domain.BackupCreateResponse{}, err
	}

	// Backup records are their own audit trail; writing an activity log row
	// here would change the very row counts the backup is meant to freeze.
	return domain.BackupCreateResponse{
		Success:  true,
		BackupID: record.ID,
		FileName: record.FileName,
		SizeByte: record.FileSizeBytes,
	}, nil
}

func (s *Service) ListBackups(ctx context.Context, scope string, targetID string, limit int) (domain.BackupListResponse, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	records, err := s.backups.List(ctx, scope, targetID, limit)
	if err != nil {
		return domain.BackupListResponse{}, err
	}
	items := make([]domain.BackupListItem, 0, len(records))
	for _, r := range records {
		items = append(items, domain.BackupListItem{
			ID:        r.ID,
			FileName:  r.FileName,
			FileSize:  r.FileSizeBytes,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		})
	}
	return domain.BackupListResponse{Success: true, Backups: items}, nil
}

// OpenBackup returns the archive for download. The caller closes the reader.
func (s *Service) OpenBackup(ctx context.Context, backupID string) (*domain.Backup, io.ReadCloser, error) {
	return s.backups.Open(ctx, backupID)
}

// DeleteBackup removes the archive from disk. The record stays for audit, and
// the backup gate refuses it once the file is gone.
func (s *Service) DeleteBackup(ctx context.Context, backupID string) error {
	if backupID == "" {
		return store.ErrInvalidInput
	}
	record, err := s.repo.GetBackup(ctx, backupID)
	if err != nil {
		return err
	}
	return s.backups.Delete(record)
}

// CreateRestorePoint names a verified backup so it can be restored later.
func (s *Service) CreateRestorePoint(ctx context.Context, req domain.RestorePointCreateRequest) (domain.RestorePointCreateResponse, error) {
	if req.CompanyID == "" || req.BackupID == "" || strings.TrimSpace(req.Name) == "" {
		return domain.RestorePointCreateResponse{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetCompany(ctx, req.CompanyID); err != nil {
		return domain.RestorePointCreateResponse{}, err
	}
	if _, err := s.backups.Verify(ctx, req.BackupID, domain.ScopeCompany, req.CompanyID); err != nil {
		return domain.RestorePointCreateResponse{}, err
	}

	export, err := s.backups.Load(ctx, req.BackupID)
	if err != nil {
		return domain.RestorePointCreateResponse{}, err
	}

	actor, _ := ActorFromContext(ctx)
	point, err := s.repo.CreateRestorePoint(ctx, domain.RestorePoint{
		ID:           xid.New("rp"),
		CompanyID:    req.CompanyID,
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		BackupID:     req.BackupID,
		TotalRecords: export.TotalRecords(),
		CreatedBy:    actor.Username,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.RestorePointCreateResponse{}, err
	}

	return domain.RestorePointCreateResponse{Success: true, RestorePoint: *point}, nil
}

const mergeWarning = "merge restore appends archived rows to live data; records present in both may be duplicated"

// RestoreFromPoint replays a restore point's archive. Overwrite first
// snapshots the current state into a fresh backup, then purges and reloads;
// merge appends the archived rows to whatever is live, reissuing ids on
// collision.
func (s *Service) RestoreFromPoint(ctx context.Context, req domain.RestoreRequest) (domain.RestoreResponse, error) {
	if req.RestorePointID == "" || req.CompanyID == "" {
		return domain.RestoreResponse{}, store.ErrInvalidInput
	}
	if req.RestoreType != domain.RestoreTypeOverwrite && req.RestoreType != domain.RestoreTypeMerge {
		return domain.RestoreResponse{}, fmt.Errorf("%w: restore_type must be overwrite or merge", store.ErrInvalidInput)
	}

	point, err := s.repo.GetRestorePoint(ctx, req.RestorePointID)
	if err != nil {
		return domain.RestoreResponse{}, err
	}
	if point.CompanyID != req.CompanyID {
		return domain.RestoreResponse{}, fmt.Errorf("%w: restore point belongs to another company", store.ErrInvalidInput)
	}

	key := guardKey(domain.ScopeCompany, req.CompanyID)
	if !s.guard.acquire(key) {
		return domain.RestoreResponse{}, store.ErrResetInProgress
	}
	defer s.guard.release(key)

	export, err := s.backups.Load(ctx, point.BackupID)
	if err != nil {
		return domain.RestoreResponse{}, err
	}

	actor, _ := ActorFromContext(ctx)
	merge := req.RestoreType == domain.RestoreTypeMerge

	var restored int64
	var tables int
	if merge {
		restored, tables, err = s.repo.ImportCompanyData(ctx, req.CompanyID, export, true)
	} else {
		// The pre-restore snapshot makes an overwrite itself reversible.
		if _, err := s.backups.Create(ctx, domain.ScopeCompany, req.CompanyID, actor.Username); err != nil {
			return domain.RestoreResponse{}, fmt.Errorf("pre-restore snapshot: %w", err)
		}
		// Purge and replay run in one transaction so a failed restore
		// leaves the live data untouched.
		restored, tables, err = s.repo.ReplaceCompanyData(ctx, req.CompanyID, export)
	}
	if err != nil {
		return domain.RestoreResponse{}, err
	}

	if _, err := s.repo.MarkRestorePointApplied(ctx, point.ID, time.Now().UTC()); err != nil {
		log.Printf("[service] WARN: mark restore point %s applied: %v", point.ID, err)
	}
	if err := s.estimates.Invalidate(ctx, estimateKey(domain.ScopeCompany, req.CompanyID)); err != nil {
		log.Printf("[service] WARN: invalidate estimate after restore: %v", err)
	}

	resp := domain.RestoreResponse{
		Success:         true,
		RecordsRestored: restored,
		TablesRestored:  tables,
	}
	if merge {
		resp.MergeWarning = mergeWarning
	}
	return resp, nil
}

// DeleteRestorePoint removes the restore point record. The underlying backup
// archive and record stay for audit.
func (s *Service) DeleteRestorePoint(ctx context.Context, req domain.RestorePointDeleteRequest) error {
	if req.RestorePointID == "" {
		return store.ErrInvalidInput
	}
	point, err := s.repo.GetRestorePoint(ctx, req.RestorePointID)
	if err != nil {
		return err
	}
	if req.CompanyID != "" && point.CompanyID != req.CompanyID {
		return fmt.Errorf("%w: restore point belongs to another company", store.ErrInvalidInput)
	}
	return s.repo.DeleteRestorePoint(ctx, point.ID)
}

func (s *Service) ListRestorePoints(ctx context.Context, companyID string, limit int) ([]domain.RestorePoint, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListRestorePoints(ctx, companyID, limit)
}

func (s *Service) CreateCompany(ctx context.Context, req domain.CompanyCreateRequest) (domain.Company, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Company{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateCompany(ctx, domain.Company{
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Company{}, err
	}
	s.logActivity(ctx, created.ID, "company_create", "company", created.ID, created.Name)
	return *created, nil
}

func (s *Service) GetCompany(ctx context.Context, companyID string) (domain.Company, error) {
	company, err := s.repo.GetCompany(ctx, companyID)
	if err != nil {
		return domain.Company{}, err
	}
	return *company, nil
}

func (s *Service) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	return s.repo.ListCompanies(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.CompanyID == "" || req.Name == "" || req.PriceCents < 0 || req.StockQty < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		CompanyID:  req.CompanyID,
		Name:       req.Name,
		Category:   strings.TrimSpace(req.Category),
		Brand:      strings.TrimSpace(req.Brand),
		PriceCents: req.PriceCents,
		StockQty:   req.StockQty,
		ImagePath:  req.ImagePath,
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.logActivity(ctx, req.CompanyID, "product_create", "product", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListProducts(ctx context.Context, companyID string, limit int) ([]domain.Product, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListProducts(ctx, companyID, limit)
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if req.CompanyID == "" || req.ProductID == "" || req.Qty < 1 || req.TotalCents < 0 {
		return domain.Sale{}, store.ErrInvalidInput
	}
	actor, _ := ActorFromContext(ctx)
	created, err := s.repo.CreateSale(ctx, domain.Sale{
		CompanyID:  req.CompanyID,
		ProductID:  req.ProductID,
		CustomerID: req.CustomerID,
		Qty:        req.Qty,
		TotalCents: req.TotalCents,
		SoldBy:     actor.Username,
	})
	if err != nil {
		return domain.Sale{}, err
	}
	s.logActivity(ctx, req.CompanyID, "sale_create", "sale", created.ID, fmt.Sprintf("qty=%d,total=%d", created.Qty, created.TotalCents))
	return *created, nil
}

func (s *Service) CreateSwap(ctx context.Context, req domain.SwapCreateRequest) (domain.Swap, error) {
	req.GivenDevice = strings.TrimSpace(req.GivenDevice)
	req.ReceivedDevice = strings.TrimSpace(req.ReceivedDevice)
	if req.CompanyID == "" || req.GivenDevice == "" || req.ReceivedDevice == "" || req.TopUpCents < 0 {
		return domain.Swap{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateSwap(ctx, domain.Swap{
		CompanyID:      req.CompanyID,
		GivenDevice:    req.GivenDevice,
		ReceivedDevice: req.ReceivedDevice,
		TopUpCents:     req.TopUpCents,
	})
	if err != nil {
		return domain.Swap{}, err
	}
	s.logActivity(ctx, req.CompanyID, "swap_create", "swap", created.ID, fmt.Sprintf("given=%s,received=%s", created.GivenDevice, created.ReceivedDevice))
	return *created, nil
}

func (s *Service) CreateRepair(ctx context.Context, req domain.RepairCreateRequest) (domain.Repair, error) {
	req.Device = strings.TrimSpace(req.Device)
	if req.CompanyID == "" || req.Device == "" || req.CostCents < 0 {
		return domain.Repair{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateRepair(ctx, domain.Repair{
		CompanyID:  req.CompanyID,
		CustomerID: req.CustomerID,
		Device:     req.Device,
		Fault:      strings.TrimSpace(req.Fault),
		Status:     domain.RepairStatusReceived,
		CostCents:  req.CostCents,
		PhotoPath:  req.PhotoPath,
	})
	if err != nil {
		return domain.Repair{}, err
	}
	s.logActivity(ctx, req.CompanyID, "repair_create", "repair", created.ID, created.Device)
	return *created, nil
}

func (s *Service) ListRepairs(ctx context.Context, companyID string, status string, limit int) ([]domain.Repair, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListRepairs(ctx, companyID, status, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.CompanyID == "" || req.Name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		CompanyID: req.CompanyID,
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logActivity(ctx, req.CompanyID, "customer_create", "customer", created.ID, created.Name)
	return *created, nil
}

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.Payment, error) {
	req.Kind = strings.TrimSpace(req.Kind)
	if req.CompanyID == "" || req.Kind == "" || req.AmountCents < 0 {
		return domain.Payment{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreatePayment(ctx, domain.Payment{
		CompanyID:   req.CompanyID,
		ReferenceID: req.ReferenceID,
		Kind:        req.Kind,
		AmountCents: req.AmountCents,
	})
	if err != nil {
		return domain.Payment{}, err
	}
	s.logActivity(ctx, req.CompanyID, "payment_create", "payment", created.ID, fmt.Sprintf("kind=%s,amount=%d", created.Kind, created.AmountCents))
	return *created, nil
}

func (s *Service) CreateSMSLog(ctx context.Context, req domain.SMSLogCreateRequest) (domain.SMSLog, error) {
	req.Recipient = strings.TrimSpace(req.Recipient)
	if req.CompanyID == "" || req.Recipient == "" {
		return domain.SMSLog{}, store.ErrInvalidInput
	}
	created, err := s.repo.CreateSMSLog(ctx, domain.SMSLog{
		CompanyID:  req.CompanyID,
		Recipient:  req.Recipient,
		Message:    req.Message,
		CostCredit: req.CostCredit,
	})
	if err != nil {
		return domain.SMSLog{}, err
	}
	s.logActivity(ctx, req.CompanyID, "sms_log_create", "sms_log", created.ID, created.Recipient)
	return *created, nil
}

// Catalog items and settings are global and survive every reset scope, so
// none of these write activity logs against a company.
func (s *Service) CreateCatalogItem(ctx context.Context, req domain.CatalogItemCreateRequest) (domain.CatalogItem, error) {
	created, err := s.repo.CreateCatalogItem(ctx, domain.CatalogItem{
		Kind: strings.TrimSpace(req.Kind),
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		return domain.CatalogItem{}, err
	}
	return *created, nil
}

func (s *Service) ListCatalogItems(ctx context.Context, kind string) ([]domain.CatalogItem, error) {
	return s.repo.ListCatalogItems(ctx, kind)
}

func (s *Service) SetSetting(ctx context.Context, req domain.SettingUpdateRequest) (domain.Setting, error) {
	setting, err := s.repo.SetSetting(ctx, strings.TrimSpace(req.Key), req.Value)
	if err != nil {
		return domain.Setting{}, err
	}
	return *setting, nil
}

func (s *Service) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	return s.repo.ListSettings(ctx)
}

func (s *Service) ListActivityLogs(ctx context.Context, companyID string, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListActivityLogs(ctx, companyID, from, to, limit)
}

func (s *Service) logActivity(ctx context.Context, companyID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateActivityLog(ctx, domain.ActivityLog{
		ID:            xid.New("act"),
		CompanyID:     companyID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[activity] WARN: failed to write activity log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
