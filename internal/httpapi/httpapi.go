package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/service"
	"tokobengkel/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	uploadsDir    string
	loginLimiter  *attemptLimiter
	resetLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, uploadsDir string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		uploadsDir:    uploadsDir,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		resetLimiter:  newAttemptLimiter(10, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/auth/login", a.handleLogin)

	mux.HandleFunc("/api/admin/companies", a.requireAuth(a.handleCompanies, domain.RoleSystemAdmin))
	mux.HandleFunc("/api/admin/companies/", a.requireAuth(a.handleCompanyActions, domain.RoleSystemAdmin))
	mux.HandleFunc("/api/admin/system/reset", a.requireAuth(a.handleSystemReset, domain.RoleSystemAdmin))
	mux.HandleFunc("/api/admin/backup/company", a.requireAuth(a.handleCompanyBackup, domain.RoleSystemAdmin))
	mux.HandleFunc("/api/admin/backup/system", a.requireAuth(a.handleSystemBackup, domain.RoleSystemAdmin))
	mux.HandleFunc("/api/admin/backup/download/", a.requireAuth(a.handleBackupDownload, domain.RoleSystemAdmin))
	mux.HandleFunc("/api/admin/backup/delete", a.requireAuth(a.handleBackupDelete, domain.RoleSystemAdmin))
	mux.HandleFunc("/api/admin/reset-actions", a.requireAuth(a.handleResetActions, domain.RoleSystemAdmin))
	mux.HandleFunc("/api/admin/reset-actions/", a.requireAuth(a.handleResetActionDetail, domain.RoleSystemAdmin))
	mux.HandleFunc("/api/admin/settings", a.requireAuth(a.handleSettings, domain.RoleSystemAdmin))

	mux.HandleFunc("/api/company/", a.requireAuth(a.handleCompanyScoped, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))

	mux.HandleFunc("/api/restore-points", a.requireAuth(a.handleRestorePointList, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/restore-points/create", a.requireAuth(a.handleRestorePointCreate, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/restore-points/restore", a.requireAuth(a.handleRestoreApply, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/restore-points/delete", a.requireAuth(a.handleRestorePointDelete, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))

	mux.HandleFunc("/api/products", a.requireAuth(a.handleProducts, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/sales", a.requireAuth(a.handleSales, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/swaps", a.requireAuth(a.handleSwaps, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/repairs", a.requireAuth(a.handleRepairs, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/customers", a.requireAuth(a.handleCustomers, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/payments", a.requireAuth(a.handlePayments, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/sms-logs", a.requireAuth(a.handleSMSLogs, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/catalog", a.requireAuth(a.handleCatalog, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))
	mux.HandleFunc("/api/activity-logs", a.requireAuth(a.handleActivityLogs, domain.RoleSystemAdmin, domain.RoleCompanyAdmin))

	if a.uploadsDir != "" {
		mux.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(a.uploadsDir))))
	}

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// canAccessCompany limits company admins to their own company. System admins
// may touch any company.
func canAccessCompany(actor domain.Actor, companyID string) bool {
	if actor.Role == domain.RoleSystemAdmin {
		return true
	}
	return actor.Role == domain.RoleCompanyAdmin && actor.CompanyID == companyID
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCompanies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		companies, err := a.service.ListCompanies(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "companies": companies})
	case http.MethodPost:
		var req domain.CompanyCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		company, err := a.service.CreateCompany(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "company": company})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleCompanyActions routes /api/admin/companies/{id} and
// /api/admin/companies/{id}/reset.
func (a *API) handleCompanyActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/admin/companies/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("company id required"))
		return
	}
	companyID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		company, err := a.service.GetCompany(r.Context(), companyID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "company": company})
	case len(parts) == 2 && parts[1] == "reset":
		a.handleReset(w, r, domain.ScopeCompany, companyID)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown company action"))
	}
}

func (a *API) handleSystemReset(w http.ResponseWriter, r *http.Request) {
	a.handleReset(w, r, domain.ScopeSystem, "")
}

// handleReset serves both the dry-run and execute forms of a reset. The
// request body decides which: dry_run true runs the estimator only, anything
// else goes through the full gate sequence.
func (a *API) handleReset(w http.ResponseWriter, r *http.Request, scope string, targetID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.ResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.DryRun {
		result, err := a.service.DryRunReset(r.Context(), scope, targetID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if !a.resetLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many reset attempts"))
		return
	}

	result, err := a.service.ExecuteReset(r.Context(), scope, targetID, req)
	if err != nil {
		writeResetError(w, err, result.ActionID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type companyBackupRequest struct {
	CompanyID string `json:"company_id"`
}

func (a *API) handleCompanyBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req companyBackupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.CompanyID == "" {
		writeError(w, http.StatusBadRequest, errors.New("company_id required"))
		return
	}
	resp, err := a.service.CreateBackup(r.Context(), domain.ScopeCompany, req.CompanyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleSystemBackup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	resp, err := a.service.CreateBackup(r.Context(), domain.ScopeSystem, "")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleBackupDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	backupID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/backup/download/"), "/")
	if backupID == "" {
		writeError(w, http.StatusNotFound, errors.New("backup id required"))
		return
	}

	record, reader, err := a.service.OpenBackup(r.Context(), backupID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.FileName))
	if record.FileSizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(record.FileSizeBytes, 10))
	}
	if _, err := io.Copy(w, reader); err != nil {
		log.Printf("[httpapi] WARN: stream backup %s: %v", backupID, err)
	}
}

type backupDeleteRequest struct {
	BackupID string `json:"backup_id"`
}

// handleBackupDelete removes a backup's archive from disk. The record stays
// for audit, so the listing still shows the backup existed.
func (a *API) handleBackupDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req backupDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.BackupID == "" {
		writeError(w, http.StatusBadRequest, errors.New("backup_id required"))
		return
	}
	if err := a.service.DeleteBackup(r.Context(), req.BackupID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleResetActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	scope := strings.TrimSpace(r.URL.Query().Get("scope"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	actions, err := a.service.ListResetActions(r.Context(), scope, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reset_actions": actions})
}

func (a *API) handleResetActionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	actionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/admin/reset-actions/"), "/")
	if actionID == "" {
		writeError(w, http.StatusNotFound, errors.New("action id required"))
		return
	}
	action, err := a.service.GetResetAction(r.Context(), actionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reset_action": action})
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := a.service.ListSettings(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "settings": settings})
	case http.MethodPost:
		var req domain.SettingUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		setting, err := a.service.SetSetting(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "setting": setting})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleCompanyScoped routes /api/company/{id}/backups.
func (a *API) handleCompanyScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/company/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("unknown company resource"))
		return
	}
	companyID := parts[0]

	actor, _ := service.ActorFromContext(r.Context())
	if !canAccessCompany(actor, companyID) {
		writeError(w, http.StatusForbidden, errors.New("forbidden company"))
		return
	}

	switch parts[1] {
	case "backups":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
		resp, err := a.service.ListBackups(r.Context(), domain.ScopeCompany, companyID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown company resource"))
	}
}

func (a *API) handleRestorePointList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	companyID := strings.TrimSpace(r.URL.Query().Get("company_id"))
	actor, _ := service.ActorFromContext(r.Context())
	if actor.Role == domain.RoleCompanyAdmin {
		companyID = actor.CompanyID
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	points, err := a.service.ListRestorePoints(r.Context(), companyID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "restore_points": points})
}

func (a *API) handleRestorePointCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.RestorePointCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	if !canAccessCompany(actor, req.CompanyID) {
		writeError(w, http.StatusForbidden, errors.New("forbidden company"))
		return
	}
	resp, err := a.service.CreateRestorePoint(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleRestoreApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.RestoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	if !canAccessCompany(actor, req.CompanyID) {
		writeError(w, http.StatusForbidden, errors.New("forbidden company"))
		return
	}
	resp, err := a.service.RestoreFromPoint(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRestorePointDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.RestorePointDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	if actor.Role == domain.RoleCompanyAdmin {
		req.CompanyID = actor.CompanyID
	}
	if err := a.service.DeleteRestorePoint(r.Context(), req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		companyID, ok := a.scopedCompanyID(w, r)
		if !ok {
			return
		}
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		products, err := a.service.ListProducts(r.Context(), companyID, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		actor, _ := service.ActorFromContext(r.Context())
		if !canAccessCompany(actor, req.CompanyID) {
			writeError(w, http.StatusForbidden, errors.New("forbidden company"))
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SaleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	if !canAccessCompany(actor, req.CompanyID) {
		writeError(w, http.StatusForbidden, errors.New("forbidden company"))
		return
	}
	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "sale": sale})
}

func (a *API) handleSwaps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SwapCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	if !canAccessCompany(actor, req.CompanyID) {
		writeError(w, http.StatusForbidden, errors.New("forbidden company"))
		return
	}
	swap, err := a.service.CreateSwap(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "swap": swap})
}

func (a *API) handleRepairs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		companyID, ok := a.scopedCompanyID(w, r)
		if !ok {
			return
		}
		status := strings.TrimSpace(r.URL.Query().Get("status"))
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		repairs, err := a.service.ListRepairs(r.Context(), companyID, status, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "repairs": repairs})
	case http.MethodPost:
		var req domain.RepairCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		actor, _ := service.ActorFromContext(r.Context())
		if !canAccessCompany(actor, req.CompanyID) {
			writeError(w, http.StatusForbidden, errors.New("forbidden company"))
			return
		}
		repair, err := a.service.CreateRepair(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "repair": repair})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	if !canAccessCompany(actor, req.CompanyID) {
		writeError(w, http.StatusForbidden, errors.New("forbidden company"))
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "customer": customer})
}

func (a *API) handlePayments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.PaymentCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	if !canAccessCompany(actor, req.CompanyID) {
		writeError(w, http.StatusForbidden, errors.New("forbidden company"))
		return
	}
	payment, err := a.service.CreatePayment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "payment": payment})
}

func (a *API) handleSMSLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.SMSLogCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	if !canAccessCompany(actor, req.CompanyID) {
		writeError(w, http.StatusForbidden, errors.New("forbidden company"))
		return
	}
	entry, err := a.service.CreateSMSLog(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "sms_log": entry})
}

// handleCatalog serves the global catalog. Reads are open to both roles;
// only system admins add entries.
func (a *API) handleCatalog(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		kind := strings.TrimSpace(r.URL.Query().Get("kind"))
		items, err := a.service.ListCatalogItems(r.Context(), kind)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "catalog_items": items})
	case http.MethodPost:
		actor, _ := service.ActorFromContext(r.Context())
		if actor.Role != domain.RoleSystemAdmin {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		var req domain.CatalogItemCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		item, err := a.service.CreateCatalogItem(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "catalog_item": item})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleActivityLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	companyID, ok := a.scopedCompanyID(w, r)
	if !ok {
		return
	}

	var from, to time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("from must be RFC3339"))
			return
		}
		from = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("to must be RFC3339"))
			return
		}
		to = parsed
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListActivityLogs(r.Context(), companyID, from, to, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "activity_logs": logs})
}

// scopedCompanyID resolves which company a list request covers. Company
// admins are pinned to their own; system admins pass company_id explicitly.
func (a *API) scopedCompanyID(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, _ := service.ActorFromContext(r.Context())
	if actor.Role == domain.RoleCompanyAdmin {
		return actor.CompanyID, true
	}
	companyID := strings.TrimSpace(r.URL.Query().Get("company_id"))
	if companyID == "" {
		writeError(w, http.StatusBadRequest, errors.New("company_id required"))
		return "", false
	}
	return companyID, true
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// statusForServiceError maps sentinel errors from the store and service
// layers to HTTP statuses.
func statusForServiceError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusForbidden
	case errors.Is(err, store.ErrResetInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusForServiceError(err), err)
}

// writeResetError reports a failed execute. If the reset action row was
// already written, its id rides along so the failure can be looked up later.
// A failed destructive transaction keeps its own message instead of the
// generic 5xx one; the wrapped cause is still flattened out of the response.
func writeResetError(w http.ResponseWriter, err error, actionID string) {
	status := statusForServiceError(err)
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
		if errors.Is(err, store.ErrTransactionFailed) {
			msg = store.ErrTransactionFailed.Error()
		}
	}
	body := map[string]any{"success": false, "error": msg}
	if actionID != "" {
		body["action_id"] = actionID
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses get a generic message so internal details (SQL errors,
	// file paths) never reach clients. 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
