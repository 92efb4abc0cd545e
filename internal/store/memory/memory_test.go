package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/store"
)

func seedCompany(t *testing.T, s *Store, name string) *domain.Company {
	t.Helper()
	company, err := s.CreateCompany(context.Background(), domain.Company{Name: name})
	if err != nil {
		t.Fatalf("create company: %v", err)
	}
	return company
}

func TestPurgeCompanyKeepsCompanyRowAndUsers(t *testing.T) {
	s := New()
	ctx := context.Background()
	company := seedCompany(t, s, "Bengkel Satu")

	if err := s.CreateUser(ctx, domain.UserAccount{
		Username:  "admin1",
		Password:  "hash",
		Role:      domain.RoleCompanyAdmin,
		CompanyID: company.ID,
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{CompanyID: company.ID, Name: "Oli", PriceCents: 500})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateSale(ctx, domain.Sale{CompanyID: company.ID, ProductID: product.ID, Qty: 2, TotalCents: 1000}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	result, err := s.PurgeCompanyData(ctx, company.ID)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	var total int64
	for _, n := range result.RowCounts {
		total += n
	}
	if total != 2 {
		t.Fatalf("expected 2 purged rows, got %d (%v)", total, result.RowCounts)
	}

	if _, err := s.GetCompany(ctx, company.ID); err != nil {
		t.Fatalf("company row must survive its own reset: %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, "admin1"); err != nil {
		t.Fatalf("user accounts must survive a company reset: %v", err)
	}
	products, _ := s.ListProducts(ctx, company.ID, 0)
	if len(products) != 0 {
		t.Fatalf("products survived the purge")
	}
}

func TestPurgeSystemKeepsSystemAdmins(t *testing.T) {
	s := New()
	ctx := context.Background()
	company := seedCompany(t, s, "Bengkel Dua")

	if err := s.CreateUser(ctx, domain.UserAccount{Username: "root", Password: "hash", Role: domain.RoleSystemAdmin}); err != nil {
		t.Fatalf("create root: %v", err)
	}
	if err := s.CreateUser(ctx, domain.UserAccount{
		Username:  "admin2",
		Password:  "hash",
		Role:      domain.RoleCompanyAdmin,
		CompanyID: company.ID,
	}); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	if _, err := s.PurgeSystemData(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}

	if _, err := s.GetUserByUsername(ctx, "root"); err != nil {
		t.Fatalf("system admin must survive a system reset: %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, "admin2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("company admin should be purged, got %v", err)
	}
	companies, _ := s.ListCompanies(ctx)
	if len(companies) != 0 {
		t.Fatalf("companies should be purged, %d left", len(companies))
	}
}

func TestPurgeSystemKeepsCatalogAndSettings(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedCompany(t, s, "Bengkel Enam")

	if _, err := s.CreateCatalogItem(ctx, domain.CatalogItem{Kind: domain.CatalogKindCategory, Name: "sparepart"}); err != nil {
		t.Fatalf("create catalog item: %v", err)
	}
	if _, err := s.SetSetting(ctx, "sms_sender_name", "TokoBengkel"); err != nil {
		t.Fatalf("set setting: %v", err)
	}

	if _, err := s.PurgeSystemData(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}

	items, _ := s.ListCatalogItems(ctx, "")
	if len(items) != 1 {
		t.Fatalf("catalog must survive a system reset, got %d items", len(items))
	}
	if _, err := s.GetSetting(ctx, "sms_sender_name"); err != nil {
		t.Fatalf("settings must survive a system reset: %v", err)
	}
}

func TestPurgeSystemKeepsPlatformActivityLogs(t *testing.T) {
	s := New()
	ctx := context.Background()
	company := seedCompany(t, s, "Bengkel Tujuh")

	if err := s.CreateActivityLog(ctx, domain.ActivityLog{CompanyID: company.ID, Action: "sale.create"}); err != nil {
		t.Fatalf("create company log: %v", err)
	}
	if err := s.CreateActivityLog(ctx, domain.ActivityLog{Action: "maintenance.window"}); err != nil {
		t.Fatalf("create platform log: %v", err)
	}

	counts, err := s.CountSystemRows(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[domain.TableActivityLogs] != 1 {
		t.Fatalf("expected 1 countable activity log, got %d", counts[domain.TableActivityLogs])
	}

	result, err := s.PurgeSystemData(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if result.RowCounts[domain.TableActivityLogs] != 1 {
		t.Fatalf("expected 1 purged activity log, got %d", result.RowCounts[domain.TableActivityLogs])
	}

	logs, err := s.ListActivityLogs(ctx, "", time.Time{}, time.Time{}, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "maintenance.window" {
		t.Fatalf("platform log must survive a system reset, got %+v", logs)
	}
}

func TestCatalogRejectsDuplicatesAndUnknownKind(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.CreateCatalogItem(ctx, domain.CatalogItem{Kind: domain.CatalogKindBrand, Name: "Apple"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateCatalogItem(ctx, domain.CatalogItem{Kind: domain.CatalogKindBrand, Name: "apple"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("duplicate brand accepted: %v", err)
	}
	if _, err := s.CreateCatalogItem(ctx, domain.CatalogItem{Kind: "color", Name: "red"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("unknown kind accepted: %v", err)
	}
}

func TestPurgeCollectsFilePaths(t *testing.T) {
	s := New()
	ctx := context.Background()
	company := seedCompany(t, s, "Bengkel Tiga")

	if _, err := s.CreateProduct(ctx, domain.Product{
		CompanyID: company.ID,
		Name:      "Ban",
		ImagePath: "/uploads/ban.jpg",
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateRepair(ctx, domain.Repair{
		CompanyID: company.ID,
		Device:    "HP",
		PhotoPath: "/uploads/hp.jpg",
	}); err != nil {
		t.Fatalf("create repair: %v", err)
	}

	result, err := s.PurgeCompanyData(ctx, company.ID)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(result.FilePaths) != 2 {
		t.Fatalf("expected 2 file paths, got %v", result.FilePaths)
	}
}

func TestImportMergeRemapsDependentRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	company := seedCompany(t, s, "Bengkel Empat")

	product, err := s.CreateProduct(ctx, domain.Product{CompanyID: company.ID, Name: "Busi", PriceCents: 200})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	// The export carries a product with the same id as a live row plus a
	// sale referencing it, so the merge must reissue and remap.
	export := &domain.DataExport{
		Scope:    domain.ScopeCompany,
		TargetID: company.ID,
		Products: []domain.Product{{ID: product.ID, CompanyID: company.ID, Name: "Busi lama", PriceCents: 150}},
		Sales:    []domain.Sale{{ID: "sal_old", CompanyID: company.ID, ProductID: product.ID, Qty: 1, TotalCents: 150}},
	}

	restored, tables, err := s.ImportCompanyData(ctx, company.ID, export, true)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if restored != 2 || tables != 2 {
		t.Fatalf("restored=%d tables=%d", restored, tables)
	}

	products, _ := s.ListProducts(ctx, company.ID, 0)
	if len(products) != 2 {
		t.Fatalf("expected 2 products after merge, got %d", len(products))
	}

	var reissued string
	for _, p := range products {
		if p.ID != product.ID {
			reissued = p.ID
		}
	}
	if reissued == "" {
		t.Fatalf("colliding product id was not reissued")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sale := range s.sales {
		if sale.ProductID != reissued {
			t.Fatalf("sale still references old product id %s", sale.ProductID)
		}
	}
}

func TestImportOverwriteKeepsIDs(t *testing.T) {
	s := New()
	ctx := context.Background()
	company := seedCompany(t, s, "Bengkel Lima")

	export := &domain.DataExport{
		Scope:    domain.ScopeCompany,
		TargetID: company.ID,
		Products: []domain.Product{{ID: "prd_fixed", CompanyID: company.ID, Name: "Aki", PriceCents: 900}},
	}
	if _, _, err := s.ImportCompanyData(ctx, company.ID, export, false); err != nil {
		t.Fatalf("import: %v", err)
	}

	products, _ := s.ListProducts(ctx, company.ID, 0)
	if len(products) != 1 || products[0].ID != "prd_fixed" {
		t.Fatalf("overwrite import must keep archived ids, got %+v", products)
	}
}

func TestReplaceSwapsLiveRowsForExport(t *testing.T) {
	s := New()
	ctx := context.Background()
	company := seedCompany(t, s, "Bengkel Delapan")
	neighbor := seedCompany(t, s, "Bengkel Sembilan")

	if _, err := s.CreateProduct(ctx, domain.Product{CompanyID: company.ID, Name: "Busi", PriceCents: 200}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{CompanyID: company.ID, Name: "Kampas", PriceCents: 300}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{CompanyID: neighbor.ID, Name: "Oli", PriceCents: 400}); err != nil {
		t.Fatalf("create neighbor product: %v", err)
	}

	export := &domain.DataExport{
		Scope:    domain.ScopeCompany,
		TargetID: company.ID,
		Products: []domain.Product{{ID: "prd_archived", CompanyID: company.ID, Name: "Aki", PriceCents: 900}},
	}
	restored, tables, err := s.ReplaceCompanyData(ctx, company.ID, export)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if restored != 1 || tables != 1 {
		t.Fatalf("unexpected replace result: restored=%d tables=%d", restored, tables)
	}

	products, _ := s.ListProducts(ctx, company.ID, 0)
	if len(products) != 1 || products[0].ID != "prd_archived" {
		t.Fatalf("replace must leave exactly the archived rows, got %+v", products)
	}
	neighborProducts, _ := s.ListProducts(ctx, neighbor.ID, 0)
	if len(neighborProducts) != 1 {
		t.Fatalf("neighbor data must not be touched by a replace")
	}
}

func TestImportUnknownCompanyFails(t *testing.T) {
	s := New()
	if _, _, err := s.ImportCompanyData(context.Background(), "cmp_missing", &domain.DataExport{}, false); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExportUnknownCompanyFails(t *testing.T) {
	s := New()
	if _, err := s.ExportCompanyData(context.Background(), "cmp_missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
