package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/store"
	"tokobengkel/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	companies       map[string]domain.Company
	usersByUsername map[string]domain.UserAccount
	products        map[string]domain.Product
	sales           map[string]domain.Sale
	swaps           map[string]domain.Swap
	repairs         map[string]domain.Repair
	customers       map[string]domain.Customer
	payments        map[string]domain.Payment
	smsLogs         map[string]domain.SMSLog
	activityLogs    []domain.ActivityLog
	catalogItems    map[string]domain.CatalogItem
	settings        map[string]domain.Setting
	resetActions    map[string]domain.ResetAction
	backups         map[string]domain.Backup
	restorePoints   map[string]domain.RestorePoint
}

func New() *Store {
	return &Store{
		companies:       make(map[string]domain.Company),
		usersByUsername: make(map[string]domain.UserAccount),
		products:        make(map[string]domain.Product),
		sales:           make(map[string]domain.Sale),
		swaps:           make(map[string]domain.Swap),
		repairs:         make(map[string]domain.Repair),
		customers:       make(map[string]domain.Customer),
		payments:        make(map[string]domain.Payment),
		smsLogs:         make(map[string]domain.SMSLog),
		activityLogs:    make([]domain.ActivityLog, 0, 128),
		catalogItems:    make(map[string]domain.CatalogItem),
		settings:        make(map[string]domain.Setting),
		resetActions:    make(map[string]domain.ResetAction),
		backups:         make(map[string]domain.Backup),
		restorePoints:   make(map[string]domain.RestorePoint),
	}
}

// NewSeeded builds a dev/demo store with a system admin, one demo company,
// and a handful of transactional rows. Credentials come from
// SEED_ROOT_PASSWORD and SEED_ADMIN_PASSWORD; hardcoded dev defaults are used
// with a warning when unset. Production uses PostgreSQL (DATABASE_URL set).
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	rootPwd := envOr("SEED_ROOT_PASSWORD", "root123")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	if os.Getenv("SEED_ROOT_PASSWORD") == "" || os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ROOT_PASSWORD and SEED_ADMIN_PASSWORD to override.")
	}

	company := domain.Company{
		ID:        xid.New("cmp"),
		Name:      "Bengkel Maju Jaya",
		Phone:     "+62811000111",
		Address:   "Jl. Raya Bogor No. 12, Jakarta",
		Active:    true,
		CreatedAt: now,
	}
	s.companies[company.ID] = company

	for _, u := range []struct {
		username  string
		password  string
		role      string
		companyID string
	}{
		{"root", rootPwd, domain.RoleSystemAdmin, ""},
		{"admin", adminPwd, domain.RoleCompanyAdmin, company.ID},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			CompanyID: u.companyID,
			Active:    true,
			CreatedAt: now,
		}
	}

	products := []domain.Product{
		{Name: "LCD iPhone 11", Category: "sparepart", Brand: "Apple", PriceCents: 85000000, StockQty: 4},
		{Name: "Baterai Samsung A52", Category: "sparepart", Brand: "Samsung", PriceCents: 21000000, StockQty: 9},
		{Name: "Charger 20W", Category: "accessory", Brand: "Generic", PriceCents: 4500000, StockQty: 25},
		{Name: "Tempered Glass", Category: "accessory", Brand: "Generic", PriceCents: 1500000, StockQty: 60},
	}
	for _, p := range products {
		p.ID = xid.New("prd")
		p.CompanyID = company.ID
		p.CreatedAt = now
		s.products[p.ID] = p
	}

	for _, item := range []struct{ kind, name string }{
		{domain.CatalogKindCategory, "sparepart"},
		{domain.CatalogKindCategory, "accessory"},
		{domain.CatalogKindBrand, "Apple"},
		{domain.CatalogKindBrand, "Samsung"},
		{domain.CatalogKindBrand, "Generic"},
	} {
		id := xid.New("cat")
		s.catalogItems[id] = domain.CatalogItem{ID: id, Kind: item.kind, Name: item.name, CreatedAt: now}
	}

	customer := domain.Customer{
		ID:        xid.New("cus"),
		CompanyID: company.ID,
		Name:      "Budi Santoso",
		Phone:     "+62812345678",
		CreatedAt: now,
	}
	s.customers[customer.ID] = customer

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateCompany(_ context.Context, company domain.Company) (*domain.Company, error) {
	if strings.TrimSpace(company.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if company.ID == "" {
		company.ID = xid.New("cmp")
	}
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now().UTC()
	}
	company.Active = true
	s.companies[company.ID] = company
	created := company
	return &created, nil
}

func (s *Store) GetCompany(_ context.Context, companyID string) (*domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, exists := s.companies[companyID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCompany := company
	return &copyCompany, nil
}

func (s *Store) ListCompanies(_ context.Context) ([]domain.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	companies := make([]domain.Company, 0, len(s.companies))
	for _, c := range s.companies {
		companies = append(companies, c)
	}
	slices.SortFunc(companies, func(a, b domain.Company) int {
		return cmpString(a.Name, b.Name)
	})
	return companies, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidInput
	}
	if user.Role == domain.RoleCompanyAdmin && user.CompanyID == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.CompanyID == "" || product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[product.CompanyID]; !exists {
		return nil, store.ErrNotFound
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context, companyID string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.CompanyID == companyID {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	if limit > 0 && len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.CompanyID == "" || sale.ProductID == "" || sale.Qty < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[sale.CompanyID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.products[sale.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.sales[sale.ID] = sale
	created := sale
	return &created, nil
}

func (s *Store) CreateSwap(_ context.Context, swap domain.Swap) (*domain.Swap, error) {
	if swap.CompanyID == "" || swap.GivenDevice == "" || swap.ReceivedDevice == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[swap.CompanyID]; !exists {
		return nil, store.ErrNotFound
	}
	if swap.ID == "" {
		swap.ID = xid.New("swp")
	}
	if swap.CreatedAt.IsZero() {
		swap.CreatedAt = time.Now().UTC()
	}
	s.swaps[swap.ID] = swap
	created := swap
	return &created, nil
}

func (s *Store) CreateRepair(_ context.Context, repair domain.Repair) (*domain.Repair, error) {
	if repair.CompanyID == "" || repair.Device == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[repair.CompanyID]; !exists {
		return nil, store.ErrNotFound
	}
	if repair.ID == "" {
		repair.ID = xid.New("rep")
	}
	if repair.Status == "" {
		repair.Status = domain.RepairStatusReceived
	}
	if repair.CreatedAt.IsZero() {
		repair.CreatedAt = time.Now().UTC()
	}
	s.repairs[repair.ID] = repair
	created := repair
	return &created, nil
}

func (s *Store) ListRepairs(_ context.Context, companyID string, status string, limit int) ([]domain.Repair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repairs := make([]domain.Repair, 0)
	for _, r := range s.repairs {
		if r.CompanyID != companyID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		repairs = append(repairs, r)
	}
	slices.SortFunc(repairs, func(a, b domain.Repair) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(repairs) > limit {
		repairs = repairs[:limit]
	}
	return repairs, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.CompanyID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[customer.CompanyID]; !exists {
		return nil, store.ErrNotFound
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.CompanyID == "" || payment.AmountCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[payment.CompanyID]; !exists {
		return nil, store.ErrNotFound
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	s.payments[payment.ID] = payment
	created := payment
	return &created, nil
}

func (s *Store) CreateSMSLog(_ context.Context, entry domain.SMSLog) (*domain.SMSLog, error) {
	if entry.CompanyID == "" || entry.Recipient == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("sms")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.smsLogs[entry.ID] = entry
	created := entry
	return &created, nil
}

func (s *Store) CreateActivityLog(_ context.Context, entry domain.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("act")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.activityLogs = append(s.activityLogs, entry)
	return nil
}

func (s *Store) ListActivityLogs(_ context.Context, companyID string, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.ActivityLog, 0)
	for _, entry := range s.activityLogs {
		if companyID != "" && entry.CompanyID != companyID {
			continue
		}
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.ActivityLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateCatalogItem(_ context.Context, item domain.CatalogItem) (*domain.CatalogItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return nil, store.ErrInvalidInput
	}
	switch item.Kind {
	case domain.CatalogKindCategory, domain.CatalogKindBrand, domain.CatalogKindSubcategory:
	default:
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.catalogItems {
		if existing.Kind == item.Kind && strings.EqualFold(existing.Name, item.Name) {
			return nil, store.ErrInvalidInput
		}
	}
	if item.ID == "" {
		item.ID = xid.New("cat")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.catalogItems[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) ListCatalogItems(_ context.Context, kind string) ([]domain.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.CatalogItem, 0, len(s.catalogItems))
	for _, item := range s.catalogItems {
		if kind != "" && item.Kind != kind {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.CatalogItem) int {
		if a.Kind != b.Kind {
			return cmpString(a.Kind, b.Kind)
		}
		return cmpString(a.Name, b.Name)
	})
	return items, nil
}

func (s *Store) SetSetting(_ context.Context, key string, value string) (*domain.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	setting := domain.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	s.settings[key] = setting
	return &setting, nil
}

func (s *Store) GetSetting(_ context.Context, key string) (*domain.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	setting, exists := s.settings[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &setting, nil
}

func (s *Store) ListSettings(_ context.Context) ([]domain.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := make([]domain.Setting, 0, len(s.settings))
	for _, setting := range s.settings {
		settings = append(settings, setting)
	}
	slices.SortFunc(settings, func(a, b domain.Setting) int {
		return cmpString(a.Key, b.Key)
	})
	return settings, nil
}

func (s *Store) CountCompanyRows(_ context.Context, companyID string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.companies[companyID]; !exists {
		return nil, store.ErrNotFound
	}
	return s.countCompanyRowsLocked(companyID), nil
}

func (s *Store) countCompanyRowsLocked(companyID string) map[string]int64 {
	counts := make(map[string]int64, len(domain.CompanyTables()))
	for _, table := range domain.CompanyTables() {
		counts[table] = 0
	}
	for _, r := range s.sales {
		if r.CompanyID == companyID {
			counts[domain.TableSales]++
		}
	}
	for _, r := range s.swaps {
		if r.CompanyID == companyID {
			counts[domain.TableSwaps]++
		}
	}
	for _, r := range s.repairs {
		if r.CompanyID == companyID {
			counts[domain.TableRepairs]++
		}
	}
	for _, r := range s.payments {
		if r.CompanyID == companyID {
			counts[domain.TablePayments]++
		}
	}
	for _, r := range s.smsLogs {
		if r.CompanyID == companyID {
			counts[domain.TableSMSLogs]++
		}
	}
	for _, r := range s.activityLogs {
		if r.CompanyID == companyID {
			counts[domain.TableActivityLogs]++
		}
	}
	for _, r := range s.products {
		if r.CompanyID == companyID {
			counts[domain.TableProducts]++
		}
	}
	for _, r := range s.customers {
		if r.CompanyID == companyID {
			counts[domain.TableCustomers]++
		}
	}
	return counts
}

func (s *Store) CountSystemRows(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64, len(domain.SystemTables()))
	for _, table := range domain.SystemTables() {
		counts[table] = 0
	}
	counts[domain.TableSales] = int64(len(s.sales))
	counts[domain.TableSwaps] = int64(len(s.swaps))
	counts[domain.TableRepairs] = int64(len(s.repairs))
	counts[domain.TablePayments] = int64(len(s.payments))
	counts[domain.TableSMSLogs] = int64(len(s.smsLogs))
	// Platform-level audit rows (no company) sit outside the purge scope.
	for _, l := range s.activityLogs {
		if l.CompanyID != "" {
			counts[domain.TableActivityLogs]++
		}
	}
	counts[domain.TableProducts] = int64(len(s.products))
	counts[domain.TableCustomers] = int64(len(s.customers))
	counts[domain.TableCompanies] = int64(len(s.companies))
	for _, u := range s.usersByUsername {
		if u.CompanyID != "" {
			counts[domain.TableUsers]++
		}
	}
	return counts, nil
}

func (s *Store) ExportCompanyData(_ context.Context, companyID string) (*domain.DataExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, exists := s.companies[companyID]
	if !exists {
		return nil, store.ErrNotFound
	}

	export := &domain.DataExport{
		Scope:      domain.ScopeCompany,
		TargetID:   companyID,
		ExportedAt: time.Now().UTC(),
		Companies:  []domain.Company{company},
	}
	for _, r := range s.products {
		if r.CompanyID == companyID {
			export.Products = append(export.Products, r)
		}
	}
	for _, r := range s.sales {
		if r.CompanyID == companyID {
			export.Sales = append(export.Sales, r)
		}
	}
	for _, r := range s.swaps {
		if r.CompanyID == companyID {
			export.Swaps = append(export.Swaps, r)
		}
	}
	for _, r := range s.repairs {
		if r.CompanyID == companyID {
			export.Repairs = append(export.Repairs, r)
		}
	}
	for _, r := range s.customers {
		if r.CompanyID == companyID {
			export.Customers = append(export.Customers, r)
		}
	}
	for _, r := range s.payments {
		if r.CompanyID == companyID {
			export.Payments = append(export.Payments, r)
		}
	}
	for _, r := range s.smsLogs {
		if r.CompanyID == companyID {
			export.SMSLogs = append(export.SMSLogs, r)
		}
	}
	for _, r := range s.activityLogs {
		if r.CompanyID == companyID {
			export.ActivityLogs = append(export.ActivityLogs, r)
		}
	}
	sortExport(export)
	return export, nil
}

func (s *Store) ExportSystemData(_ context.Context) (*domain.DataExport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	export := &domain.DataExport{
		Scope:      domain.ScopeSystem,
		ExportedAt: time.Now().UTC(),
	}
	for _, r := range s.companies {
		export.Companies = append(export.Companies, r)
	}
	for _, r := range s.usersByUsername {
		export.Users = append(export.Users, r)
	}
	for _, r := range s.products {
		export.Products = append(export.Products, r)
	}
	for _, r := range s.sales {
		export.Sales = append(export.Sales, r)
	}
	for _, r := range s.swaps {
		export.Swaps = append(export.Swaps, r)
	}
	for _, r := range s.repairs {
		export.Repairs = append(export.Repairs, r)
	}
	for _, r := range s.customers {
		export.Customers = append(export.Customers, r)
	}
	for _, r := range s.payments {
		export.Payments = append(export.Payments, r)
	}
	for _, r := range s.smsLogs {
		export.SMSLogs = append(export.SMSLogs, r)
	}
	for _, l := range s.activityLogs {
		if l.CompanyID != "" {
			export.ActivityLogs = append(export.ActivityLogs, l)
		}
	}
	sortExport(export)
	return export, nil
}

func (s *Store) PurgeCompanyData(_ context.Context, companyID string) (*store.PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[companyID]; !exists {
		return nil, store.ErrNotFound
	}

	result := &store.PurgeResult{RowCounts: make(map[string]int64, len(domain.CompanyTables()))}
	for _, table := range domain.CompanyTables() {
		result.RowCounts[table] = 0
	}

	for id, r := range s.sales {
		if r.CompanyID == companyID {
			delete(s.sales, id)
			result.RowCounts[domain.TableSales]++
		}
	}
	for id, r := range s.swaps {
		if r.CompanyID == companyID {
			delete(s.swaps, id)
			result.RowCounts[domain.TableSwaps]++
		}
	}
	for id, r := range s.repairs {
		if r.CompanyID == companyID {
			if r.PhotoPath != "" {
				result.FilePaths = append(result.FilePaths, r.PhotoPath)
			}
			delete(s.repairs, id)
			result.RowCounts[domain.TableRepairs]++
		}
	}
	for id, r := range s.payments {
		if r.CompanyID == companyID {
			delete(s.payments, id)
			result.RowCounts[domain.TablePayments]++
		}
	}
	for id, r := range s.smsLogs {
		if r.CompanyID == companyID {
			delete(s.smsLogs, id)
			result.RowCounts[domain.TableSMSLogs]++
		}
	}
	kept := s.activityLogs[:0]
	for _, r := range s.activityLogs {
		if r.CompanyID == companyID {
			result.RowCounts[domain.TableActivityLogs]++
			continue
		}
		kept = append(kept, r)
	}
	s.activityLogs = kept
	for id, r := range s.products {
		if r.CompanyID == companyID {
			if r.ImagePath != "" {
				result.FilePaths = append(result.FilePaths, r.ImagePath)
			}
			delete(s.products, id)
			result.RowCounts[domain.TableProducts]++
		}
	}
	for id, r := range s.customers {
		if r.CompanyID == companyID {
			delete(s.customers, id)
			result.RowCounts[domain.TableCustomers]++
		}
	}
	return result, nil
}

func (s *Store) PurgeSystemData(_ context.Context) (*store.PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &store.PurgeResult{RowCounts: make(map[string]int64, len(domain.SystemTables()))}
	for _, table := range domain.SystemTables() {
		result.RowCounts[table] = 0
	}

	result.RowCounts[domain.TableSales] = int64(len(s.sales))
	result.RowCounts[domain.TableSwaps] = int64(len(s.swaps))
	result.RowCounts[domain.TablePayments] = int64(len(s.payments))
	result.RowCounts[domain.TableSMSLogs] = int64(len(s.smsLogs))
	result.RowCounts[domain.TableCustomers] = int64(len(s.customers))
	result.RowCounts[domain.TableCompanies] = int64(len(s.companies))
	for _, r := range s.repairs {
		if r.PhotoPath != "" {
			result.FilePaths = append(result.FilePaths, r.PhotoPath)
		}
		result.RowCounts[domain.TableRepairs]++
	}
	for _, r := range s.products {
		if r.ImagePath != "" {
			result.FilePaths = append(result.FilePaths, r.ImagePath)
		}
		result.RowCounts[domain.TableProducts]++
	}

	s.sales = make(map[string]domain.Sale)
	s.swaps = make(map[string]domain.Swap)
	s.repairs = make(map[string]domain.Repair)
	s.payments = make(map[string]domain.Payment)
	s.smsLogs = make(map[string]domain.SMSLog)
	s.products = make(map[string]domain.Product)
	s.customers = make(map[string]domain.Customer)
	s.companies = make(map[string]domain.Company)

	// Platform-level audit rows (no company) survive alongside the reset
	// audit trail.
	kept := make([]domain.ActivityLog, 0, 8)
	for _, l := range s.activityLogs {
		if l.CompanyID == "" {
			kept = append(kept, l)
			continue
		}
		result.RowCounts[domain.TableActivityLogs]++
	}
	s.activityLogs = kept

	// System administrators survive a full reset so someone can still log in.
	for username, u := range s.usersByUsername {
		if u.CompanyID != "" {
			delete(s.usersByUsername, username)
			result.RowCounts[domain.TableUsers]++
		}
	}
	return result, nil
}

func (s *Store) ImportCompanyData(_ context.Context, companyID string, export *domain.DataExport, merge bool) (int64, int, error) {
	if export == nil {
		return 0, 0, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[companyID]; !exists {
		return 0, 0, store.ErrNotFound
	}

	restored, tables := s.importLocked(companyID, export, merge)
	return restored, tables, nil
}

// ReplaceCompanyData drops the company's transactional rows and replays the
// export under one lock hold, mirroring the SQL store's single-transaction
// replace: either both halves happen or neither does.
func (s *Store) ReplaceCompanyData(_ context.Context, companyID string, export *domain.DataExport) (int64, int, error) {
	if export == nil {
		return 0, 0, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[companyID]; !exists {
		return 0, 0, store.ErrNotFound
	}

	for id, r := range s.sales {
		if r.CompanyID == companyID {
			delete(s.sales, id)
		}
	}
	for id, r := range s.swaps {
		if r.CompanyID == companyID {
			delete(s.swaps, id)
		}
	}
	for id, r := range s.repairs {
		if r.CompanyID == companyID {
			delete(s.repairs, id)
		}
	}
	for id, r := range s.payments {
		if r.CompanyID == companyID {
			delete(s.payments, id)
		}
	}
	for id, r := range s.smsLogs {
		if r.CompanyID == companyID {
			delete(s.smsLogs, id)
		}
	}
	kept := s.activityLogs[:0]
	for _, r := range s.activityLogs {
		if r.CompanyID != companyID {
			kept = append(kept, r)
		}
	}
	s.activityLogs = kept
	for id, r := range s.products {
		if r.CompanyID == companyID {
			delete(s.products, id)
		}
	}
	for id, r := range s.customers {
		if r.CompanyID == companyID {
			delete(s.customers, id)
		}
	}

	restored, tables := s.importLocked(companyID, export, false)
	return restored, tables, nil
}

func (s *Store) importLocked(companyID string, export *domain.DataExport, merge bool) (int64, int) {
	var restored int64
	tables := 0

	// Product and customer ids may be reissued on collision during a merge;
	// sales and repairs referencing them keep working because the remap is
	// applied before the dependent rows are inserted.
	productIDs := make(map[string]string, len(export.Products))
	customerIDs := make(map[string]string, len(export.Customers))

	if n := len(export.Products); n > 0 {
		for _, r := range export.Products {
			r.CompanyID = companyID
			if _, exists := s.products[r.ID]; exists && merge {
				newID := xid.New("prd")
				productIDs[r.ID] = newID
				r.ID = newID
			}
			s.products[r.ID] = r
			restored++
		}
		tables++
	}
	if n := len(export.Customers); n > 0 {
		for _, r := range export.Customers {
			r.CompanyID = companyID
			if _, exists := s.customers[r.ID]; exists && merge {
				newID := xid.New("cus")
				customerIDs[r.ID] = newID
				r.ID = newID
			}
			s.customers[r.ID] = r
			restored++
		}
		tables++
	}
	if n := len(export.Sales); n > 0 {
		for _, r := range export.Sales {
			r.CompanyID = companyID
			if mapped, ok := productIDs[r.ProductID]; ok {
				r.ProductID = mapped
			}
			if mapped, ok := customerIDs[r.CustomerID]; ok {
				r.CustomerID = mapped
			}
			if _, exists := s.sales[r.ID]; exists && merge {
				r.ID = xid.New("sal")
			}
			s.sales[r.ID] = r
			restored++
		}
		tables++
	}
	if n := len(export.Swaps); n > 0 {
		for _, r := range export.Swaps {
			r.CompanyID = companyID
			if _, exists := s.swaps[r.ID]; exists && merge {
				r.ID = xid.New("swp")
			}
			s.swaps[r.ID] = r
			restored++
		}
		tables++
	}
	if n := len(export.Repairs); n > 0 {
		for _, r := range export.Repairs {
			r.CompanyID = companyID
			if mapped, ok := customerIDs[r.CustomerID]; ok {
				r.CustomerID = mapped
			}
			if _, exists := s.repairs[r.ID]; exists && merge {
				r.ID = xid.New("rep")
			}
			s.repairs[r.ID] = r
			restored++
		}
		tables++
	}
	if n := len(export.Payments); n > 0 {
		for _, r := range export.Payments {
			r.CompanyID = companyID
			if _, exists := s.payments[r.ID]; exists && merge {
				r.ID = xid.New("pay")
			}
			s.payments[r.ID] = r
			restored++
		}
		tables++
	}
	if n := len(export.SMSLogs); n > 0 {
		for _, r := range export.SMSLogs {
			r.CompanyID = companyID
			if _, exists := s.smsLogs[r.ID]; exists && merge {
				r.ID = xid.New("sms")
			}
			s.smsLogs[r.ID] = r
			restored++
		}
		tables++
	}
	if n := len(export.ActivityLogs); n > 0 {
		existing := make(map[string]bool, len(s.activityLogs))
		for _, r := range s.activityLogs {
			existing[r.ID] = true
		}
		for _, r := range export.ActivityLogs {
			r.CompanyID = companyID
			if existing[r.ID] && merge {
				r.ID = xid.New("act")
			}
			s.activityLogs = append(s.activityLogs, r)
			restored++
		}
		tables++
	}
	return restored, tables
}

func (s *Store) CreateResetAction(_ context.Context, action domain.ResetAction) (*domain.ResetAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if action.ID == "" {
		action.ID = xid.New("rst")
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	s.resetActions[action.ID] = action
	created := action
	return &created, nil
}

func (s *Store) UpdateResetAction(_ context.Context, action domain.ResetAction) (*domain.ResetAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resetActions[action.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.resetActions[action.ID] = action
	updated := action
	return &updated, nil
}

func (s *Store) GetResetAction(_ context.Context, actionID string) (*domain.ResetAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	action, exists := s.resetActions[actionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyAction := action
	return &copyAction, nil
}

func (s *Store) ListResetActions(_ context.Context, scope string, limit int) ([]domain.ResetAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := make([]domain.ResetAction, 0, len(s.resetActions))
	for _, a := range s.resetActions {
		if scope != "" && a.Scope != scope {
			continue
		}
		actions = append(actions, a)
	}
	slices.SortFunc(actions, func(a, b domain.ResetAction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(actions) > limit {
		actions = actions[:limit]
	}
	return actions, nil
}

func (s *Store) CreateBackup(_ context.Context, backup domain.Backup) (*domain.Backup, error) {
	if backup.Scope == "" || backup.FileName == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if backup.ID == "" {
		backup.ID = xid.New("bak")
	}
	if backup.CreatedAt.IsZero() {
		backup.CreatedAt = time.Now().UTC()
	}
	s.backups[backup.ID] = backup
	created := backup
	return &created, nil
}

func (s *Store) UpdateBackupStatus(_ context.Context, backupID string, status string, sizeBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup, exists := s.backups[backupID]
	if !exists {
		return store.ErrNotFound
	}
	backup.Status = status
	backup.FileSizeBytes = sizeBytes
	s.backups[backupID] = backup
	return nil
}

func (s *Store) GetBackup(_ context.Context, backupID string) (*domain.Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	backup, exists := s.backups[backupID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBackup := backup
	return &copyBackup, nil
}

func (s *Store) ListBackups(_ context.Context, scope string, targetID string, limit int) ([]domain.Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	backups := make([]domain.Backup, 0)
	for _, b := range s.backups {
		if scope != "" && b.Scope != scope {
			continue
		}
		if targetID != "" && b.TargetID != targetID {
			continue
		}
		backups = append(backups, b)
	}
	slices.SortFunc(backups, func(a, b domain.Backup) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(backups) > limit {
		backups = backups[:limit]
	}
	return backups, nil
}

func (s *Store) CreateRestorePoint(_ context.Context, point domain.RestorePoint) (*domain.RestorePoint, error) {
	if point.CompanyID == "" || point.Name == "" || point.BackupID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.backups[point.BackupID]; !exists {
		return nil, store.ErrNotFound
	}
	if point.ID == "" {
		point.ID = xid.New("rp")
	}
	if point.CreatedAt.IsZero() {
		point.CreatedAt = time.Now().UTC()
	}
	s.restorePoints[point.ID] = point
	created := point
	return &created, nil
}

func (s *Store) GetRestorePoint(_ context.Context, pointID string) (*domain.RestorePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	point, exists := s.restorePoints[pointID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyPoint := point
	return &copyPoint, nil
}

func (s *Store) ListRestorePoints(_ context.Context, companyID string, limit int) ([]domain.RestorePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]domain.RestorePoint, 0)
	for _, p := range s.restorePoints {
		if companyID != "" && p.CompanyID != companyID {
			continue
		}
		points = append(points, p)
	}
	slices.SortFunc(points, func(a, b domain.RestorePoint) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}

func (s *Store) DeleteRestorePoint(_ context.Context, pointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.restorePoints[pointID]; !exists {
		return store.ErrNotFound
	}
	delete(s.restorePoints, pointID)
	return nil
}

func (s *Store) MarkRestorePointApplied(_ context.Context, pointID string, at time.Time) (*domain.RestorePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	point, exists := s.restorePoints[pointID]
	if !exists {
		return nil, store.ErrNotFound
	}
	point.RestoreCount++
	applied := at
	point.RestoredAt = &applied
	s.restorePoints[pointID] = point
	updated := point
	return &updated, nil
}

func sortExport(export *domain.DataExport) {
	slices.SortFunc(export.Companies, func(a, b domain.Company) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(export.Users, func(a, b domain.UserAccount) int { return cmpString(a.Username, b.Username) })
	slices.SortFunc(export.Products, func(a, b domain.Product) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(export.Sales, func(a, b domain.Sale) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(export.Swaps, func(a, b domain.Swap) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(export.Repairs, func(a, b domain.Repair) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(export.Customers, func(a, b domain.Customer) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(export.Payments, func(a, b domain.Payment) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(export.SMSLogs, func(a, b domain.SMSLog) int { return cmpString(a.ID, b.ID) })
	slices.SortFunc(export.ActivityLogs, func(a, b domain.ActivityLog) int { return cmpString(a.ID, b.ID) })
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
