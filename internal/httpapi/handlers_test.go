package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokobengkel/backend/internal/backup"
	"tokobengkel/backend/internal/cache"
	"tokobengkel/backend/internal/cleanup"
	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/service"
	"tokobengkel/backend/internal/store"
	"tokobengkel/backend/internal/store/memory"
)

// newTestAPI builds a full API over an in-memory store so handler tests
// exercise the complete request path: auth, service and repository.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.New()
	backups, err := backup.NewManager(repo, t.TempDir())
	if err != nil {
		t.Fatalf("backup manager: %v", err)
	}
	cleaner := cleanup.NewWorker(8)
	cleaner.Start(context.Background())
	t.Cleanup(cleaner.Stop)

	svc := service.New(repo, cache.NoopEstimateCache{}, backups, cleaner, time.Second)
	auth := NewAuthManager("unit-test-secret-key-not-for-production", time.Hour, repo)
	return New(svc, auth, "*", ""), repo
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func createUser(t *testing.T, repo *memory.Store, username string, password string, role string, companyID string) {
	t.Helper()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username:  username,
		Password:  mustHashPassword(t, password),
		Role:      role,
		CompanyID: companyID,
	}); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
}

func createCompany(t *testing.T, repo *memory.Store, name string, products int) domain.Company {
	t.Helper()
	ctx := context.Background()
	company, err := repo.CreateCompany(ctx, domain.Company{Name: name})
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	for i := 0; i < products; i++ {
		if _, err := repo.CreateProduct(ctx, domain.Product{
			CompanyID:  company.ID,
			Name:       fmt.Sprintf("Part %d", i),
			PriceCents: 1000,
		}); err != nil {
			t.Fatalf("create product: %v", err)
		}
	}
	return *company
}

func doRequest(t *testing.T, api *API, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func loginToken(t *testing.T, api *API, username string, password string) string {
	t.Helper()
	rec := doRequest(t, api, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := doRequest(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api, repo := newTestAPI(t)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")

	rec := doRequest(t, api, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{
		Username: "root",
		Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Fatalf("error envelope must carry success=false: %v", body)
	}
}

func TestResetEndpointsRequireSystemAdmin(t *testing.T) {
	api, repo := newTestAPI(t)
	company := createCompany(t, repo, "Bengkel A", 1)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	createUser(t, repo, "admin", "adminpass123", domain.RoleCompanyAdmin, company.ID)

	path := "/api/admin/companies/" + company.ID + "/reset"

	rec := doRequest(t, api, http.MethodPost, path, "", domain.ResetRequest{DryRun: true})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous reset: expected 401, got %d", rec.Code)
	}

	adminToken := loginToken(t, api, "admin", "adminpass123")
	rec = doRequest(t, api, http.MethodPost, path, adminToken, domain.ResetRequest{DryRun: true})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("company admin reset: expected 403, got %d", rec.Code)
	}
}

func TestCompanyResetDryRunEndpoint(t *testing.T) {
	api, repo := newTestAPI(t)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	company := createCompany(t, repo, "Bengkel B", 10)
	for i := 0; i < 3; i++ {
		products, _ := repo.ListProducts(context.Background(), company.ID, 1)
		if _, err := repo.CreateSale(context.Background(), domain.Sale{
			CompanyID:  company.ID,
			ProductID:  products[0].ID,
			Qty:        1,
			TotalCents: 1000,
		}); err != nil {
			t.Fatalf("create sale: %v", err)
		}
	}

	token := loginToken(t, api, "root", "rootpass123")
	rec := doRequest(t, api, http.MethodPost, "/api/admin/companies/"+company.ID+"/reset", token, domain.ResetRequest{DryRun: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("dry run status %d: %s", rec.Code, rec.Body.String())
	}

	var result domain.DryRunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Success || !result.DryRun {
		t.Fatalf("unexpected flags: %+v", result)
	}
	if result.TotalRows != 13 {
		t.Fatalf("expected 13 rows, got %d", result.TotalRows)
	}
	if result.ActionID == "" {
		t.Fatalf("dry run must record an action id")
	}
}

func TestCompanyResetExecuteFlow(t *testing.T) {
	api, repo := newTestAPI(t)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	company := createCompany(t, repo, "Bengkel C", 4)
	token := loginToken(t, api, "root", "rootpass123")

	// No backup yet: the gate refuses.
	rec := doRequest(t, api, http.MethodPost, "/api/admin/companies/"+company.ID+"/reset", token, domain.ResetRequest{
		ConfirmCode: domain.ConfirmPhrase(domain.ScopeCompany, company.ID),
	})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 without backup, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodPost, "/api/admin/backup/company", token, map[string]string{"company_id": company.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("backup status %d: %s", rec.Code, rec.Body.String())
	}
	var backupResp domain.BackupCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &backupResp); err != nil {
		t.Fatalf("decode backup: %v", err)
	}

	// Wrong phrase still refuses.
	rec = doRequest(t, api, http.MethodPost, "/api/admin/companies/"+company.ID+"/reset", token, domain.ResetRequest{
		BackupReference: backupResp.BackupID,
		ConfirmCode:     "RESET COMPANY wrong",
	})
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 for wrong phrase, got %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/admin/companies/"+company.ID+"/reset", token, domain.ResetRequest{
		BackupReference: backupResp.BackupID,
		ConfirmCode:     domain.ConfirmPhrase(domain.ScopeCompany, company.ID),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("execute status %d: %s", rec.Code, rec.Body.String())
	}
	var result domain.ExecuteResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode execute: %v", err)
	}
	if result.TotalAffectedRows != 4 {
		t.Fatalf("expected 4 affected rows, got %d", result.TotalAffectedRows)
	}

	products, _ := repo.ListProducts(context.Background(), company.ID, 0)
	if len(products) != 0 {
		t.Fatalf("products survived the reset")
	}
}

func TestBackupDownloadStreamsZip(t *testing.T) {
	api, repo := newTestAPI(t)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	company := createCompany(t, repo, "Bengkel D", 2)
	token := loginToken(t, api, "root", "rootpass123")

	rec := doRequest(t, api, http.MethodPost, "/api/admin/backup/company", token, map[string]string{"company_id": company.ID})
	var backupResp domain.BackupCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &backupResp); err != nil {
		t.Fatalf("decode backup: %v", err)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/admin/backup/download/"+backupResp.BackupID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("empty download")
	}
}

func TestCompanyBackupListIsScoped(t *testing.T) {
	api, repo := newTestAPI(t)
	companyA := createCompany(t, repo, "Bengkel A", 1)
	companyB := createCompany(t, repo, "Bengkel B", 1)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	createUser(t, repo, "adminA", "adminpass123", domain.RoleCompanyAdmin, companyA.ID)

	rootToken := loginToken(t, api, "root", "rootpass123")
	rec := doRequest(t, api, http.MethodPost, "/api/admin/backup/company", rootToken, map[string]string{"company_id": companyA.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("backup status %d", rec.Code)
	}

	adminToken := loginToken(t, api, "adminA", "adminpass123")
	rec = doRequest(t, api, http.MethodGet, "/api/company/"+companyA.ID+"/backups", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("own backups status %d: %s", rec.Code, rec.Body.String())
	}
	var list domain.BackupListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Backups) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(list.Backups))
	}

	rec = doRequest(t, api, http.MethodGet, "/api/company/"+companyB.ID+"/backups", adminToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-company list: expected 403, got %d", rec.Code)
	}
}

func TestRestorePointLifecycleOverHTTP(t *testing.T) {
	api, repo := newTestAPI(t)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	company := createCompany(t, repo, "Bengkel E", 3)
	token := loginToken(t, api, "root", "rootpass123")

	rec := doRequest(t, api, http.MethodPost, "/api/admin/backup/company", token, map[string]string{"company_id": company.ID})
	var backupResp domain.BackupCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &backupResp); err != nil {
		t.Fatalf("decode backup: %v", err)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/restore-points/create", token, domain.RestorePointCreateRequest{
		CompanyID: company.ID,
		BackupID:  backupResp.BackupID,
		Name:      "stable state",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create point status %d: %s", rec.Code, rec.Body.String())
	}
	var createResp domain.RestorePointCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &createResp); err != nil {
		t.Fatalf("decode point: %v", err)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/restore-points/restore", token, domain.RestoreRequest{
		RestorePointID: createResp.RestorePoint.ID,
		CompanyID:      company.ID,
		RestoreType:    domain.RestoreTypeOverwrite,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status %d: %s", rec.Code, rec.Body.String())
	}
	var restoreResp domain.RestoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &restoreResp); err != nil {
		t.Fatalf("decode restore: %v", err)
	}
	if restoreResp.RecordsRestored < 3 {
		t.Fatalf("expected at least 3 restored records, got %d", restoreResp.RecordsRestored)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/restore-points/delete", token, domain.RestorePointDeleteRequest{
		RestorePointID: createResp.RestorePoint.ID,
		CompanyID:      company.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrInvalidInput, http.StatusBadRequest},
		{store.ErrPreconditionFailed, http.StatusPreconditionFailed},
		{store.ErrInvalidCredentials, http.StatusForbidden},
		{store.ErrResetInProgress, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", store.ErrResetInProgress), http.StatusConflict},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
		body := decodeBody(t, rec)
		if body["success"] != false {
			t.Fatalf("%v: error envelope missing success=false", tc.err)
		}
	}
}

func TestFailedExecuteEnvelopeCarriesActionID(t *testing.T) {
	rec := httptest.NewRecorder()
	err := fmt.Errorf("%w: deadlock detected", store.ErrTransactionFailed)
	writeResetError(rec, err, "rst_abc123")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["action_id"] != "rst_abc123" {
		t.Fatalf("envelope must carry the action id: %v", body)
	}
	// The failure class stays visible; the wrapped cause does not leak.
	if body["error"] != "reset transaction failed" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}

	// Without an action id the envelope stays as before.
	rec = httptest.NewRecorder()
	writeResetError(rec, store.ErrResetInProgress, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if _, ok := decodeBody(t, rec)["action_id"]; ok {
		t.Fatalf("no action id expected before the action row exists")
	}
}

func TestSwapCreateEndpoint(t *testing.T) {
	api, repo := newTestAPI(t)
	company := createCompany(t, repo, "Bengkel I", 0)
	other := createCompany(t, repo, "Bengkel J", 0)
	createUser(t, repo, "admin", "adminpass123", domain.RoleCompanyAdmin, company.ID)
	token := loginToken(t, api, "admin", "adminpass123")

	rec := doRequest(t, api, http.MethodPost, "/api/swaps", token, domain.SwapCreateRequest{
		CompanyID:      company.ID,
		GivenDevice:    "iPhone 11",
		ReceivedDevice: "iPhone 13",
		TopUpCents:     150000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("swap create status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	swap, ok := body["swap"].(map[string]any)
	if !ok || swap["given_device"] != "iPhone 11" {
		t.Fatalf("unexpected swap payload: %v", body)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/swaps", token, domain.SwapCreateRequest{
		CompanyID:      other.ID,
		GivenDevice:    "Galaxy S21",
		ReceivedDevice: "Galaxy S23",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-company swap: expected 403, got %d", rec.Code)
	}
}

func TestBackupDeleteEndpoint(t *testing.T) {
	api, repo := newTestAPI(t)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	company := createCompany(t, repo, "Bengkel K", 2)
	token := loginToken(t, api, "root", "rootpass123")

	rec := doRequest(t, api, http.MethodPost, "/api/admin/backup/company", token, map[string]string{"company_id": company.ID})
	var backupResp domain.BackupCreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &backupResp); err != nil {
		t.Fatalf("decode backup: %v", err)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/admin/backup/delete", token, map[string]string{"backup_id": backupResp.BackupID})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", rec.Code, rec.Body.String())
	}

	// The archive is gone but the record survives for audit.
	rec = doRequest(t, api, http.MethodGet, "/api/admin/backup/download/"+backupResp.BackupID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("download after delete: expected 404, got %d", rec.Code)
	}
	if _, err := repo.GetBackup(context.Background(), backupResp.BackupID); err != nil {
		t.Fatalf("backup record must survive archive deletion: %v", err)
	}
}

func TestResetActionDetail(t *testing.T) {
	api, repo := newTestAPI(t)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	company := createCompany(t, repo, "Bengkel G", 2)
	token := loginToken(t, api, "root", "rootpass123")

	rec := doRequest(t, api, http.MethodPost, "/api/admin/companies/"+company.ID+"/reset", token, domain.ResetRequest{DryRun: true})
	var result domain.DryRunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode dry run: %v", err)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/admin/reset-actions/"+result.ActionID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, api, http.MethodGet, "/api/admin/reset-actions/rst_missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown action: expected 404, got %d", rec.Code)
	}
}

func TestCatalogAndSettingsEndpoints(t *testing.T) {
	api, repo := newTestAPI(t)
	company := createCompany(t, repo, "Bengkel H", 1)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	createUser(t, repo, "admin", "adminpass123", domain.RoleCompanyAdmin, company.ID)

	rootToken := loginToken(t, api, "root", "rootpass123")
	adminToken := loginToken(t, api, "admin", "adminpass123")

	rec := doRequest(t, api, http.MethodPost, "/api/catalog", rootToken, domain.CatalogItemCreateRequest{
		Kind: domain.CatalogKindCategory,
		Name: "sparepart",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("catalog create status %d: %s", rec.Code, rec.Body.String())
	}

	// Company admins may read the catalog but not write it.
	rec = doRequest(t, api, http.MethodGet, "/api/catalog?kind=category", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog list status %d", rec.Code)
	}
	rec = doRequest(t, api, http.MethodPost, "/api/catalog", adminToken, domain.CatalogItemCreateRequest{
		Kind: domain.CatalogKindBrand,
		Name: "Apple",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("company admin catalog write: expected 403, got %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodPost, "/api/admin/settings", rootToken, domain.SettingUpdateRequest{
		Key:   "sms_sender_name",
		Value: "TokoBengkel",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("setting write status %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, api, http.MethodGet, "/api/admin/settings", adminToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("company admin settings read: expected 403, got %d", rec.Code)
	}
}

func TestResetActionsListing(t *testing.T) {
	api, repo := newTestAPI(t)
	createUser(t, repo, "root", "rootpass123", domain.RoleSystemAdmin, "")
	company := createCompany(t, repo, "Bengkel F", 1)
	token := loginToken(t, api, "root", "rootpass123")

	rec := doRequest(t, api, http.MethodPost, "/api/admin/companies/"+company.ID+"/reset", token, domain.ResetRequest{DryRun: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("dry run status %d", rec.Code)
	}

	rec = doRequest(t, api, http.MethodGet, "/api/admin/reset-actions?scope=company", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	body := decodeBody(t, rec)
	actions, ok := body["reset_actions"].([]any)
	if !ok || len(actions) != 1 {
		t.Fatalf("expected one recorded action, got %v", body["reset_actions"])
	}
}
