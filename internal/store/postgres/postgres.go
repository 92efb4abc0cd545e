package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"tokobengkel/backend/internal/domain"
	"tokobengkel/backend/internal/store"
	"tokobengkel/backend/internal/xid"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateCompany(ctx context.Context, company domain.Company) (*domain.Company, error) {
	if company.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if company.ID == "" {
		company.ID = xid.New("cmp")
	}
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now().UTC()
	}
	company.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, phone, address, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, company.ID, company.Name, company.Phone, company.Address, company.Active, company.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := company
	return &created, nil
}

func (s *Store) GetCompany(ctx context.Context, companyID string) (*domain.Company, error) {
	var c domain.Company
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, address, active, created_at
		FROM companies WHERE id = $1
	`, companyID).Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, address, active, created_at
		FROM companies ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	companies := make([]domain.Company, 0, 16)
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, company_id, active, created_at)
		VALUES ($1,$2,$3,NULLIF($4,''),true,$5)
	`, user.Username, user.Password, user.Role, user.CompanyID, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	var companyID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, company_id, active, created_at
		FROM users WHERE username = $1
	`, username).Scan(&u.Username, &u.Password, &u.Role, &companyID, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	u.CompanyID = companyID.String
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, company_id, active, created_at
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		var companyID sql.NullString
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &companyID, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CompanyID = companyID.String
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.CompanyID == "" || product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, company_id, name, category, brand, price_cents, stock_qty, image_path, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, product.ID, product.CompanyID, product.Name, product.Category, product.Brand,
		product.PriceCents, product.StockQty, product.ImagePath, product.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context, companyID string, limit int) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, category, brand, price_cents, stock_qty, image_path, created_at
		FROM products WHERE company_id = $1
		ORDER BY category, name
		LIMIT $2
	`, companyID, nullableLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Category, &p.Brand, &p.PriceCents, &p.StockQty, &p.ImagePath, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.CompanyID == "" || sale.ProductID == "" || sale.Qty < 1 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, company_id, product_id, customer_id, qty, total_cents, sold_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, sale.CompanyID, sale.ProductID, sale.CustomerID, sale.Qty, sale.TotalCents, sale.SoldBy, sale.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) CreateSwap(ctx context.Context, swap domain.Swap) (*domain.Swap, error) {
	if swap.CompanyID == "" || swap.GivenDevice == "" || swap.ReceivedDevice == "" {
		return nil, store.ErrInvalidInput
	}
	if swap.ID == "" {
		swap.ID = xid.New("swp")
	}
	if swap.CreatedAt.IsZero() {
		swap.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO swaps (id, company_id, given_device, received_device, top_up_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, swap.ID, swap.CompanyID, swap.GivenDevice, swap.ReceivedDevice, swap.TopUpCents, swap.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := swap
	return &created, nil
}

func (s *Store) CreateRepair(ctx context.Context, repair domain.Repair) (*domain.Repair, error) {
	if repair.CompanyID == "" || repair.Device == "" {
		return nil, store.ErrInvalidInput
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repairs (id, company_id, customer_id, device, fault, status, cost_cents, photo_path, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, repair.ID, repair.CompanyID, repair.CustomerID, repair.Device, repair.Fault,
		repair.Status, repair.CostCents, repair.PhotoPath, repair.CreatedAt, repair.CompletedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := repair
	return &created, nil
}

func (s *Store) ListRepairs(ctx context.Context, companyID string, status string, limit int) ([]domain.Repair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, customer_id, device, fault, status, cost_cents, photo_path, created_at, completed_at
		FROM repairs
		WHERE company_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, companyID, status, nullableLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	repairs := make([]domain.Repair, 0, 64)
	for rows.Next() {
		var r domain.Repair
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.CustomerID, &r.Device, &r.Fault, &r.Status, &r.CostCents, &r.PhotoPath, &r.CreatedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		repairs = append(repairs, r)
	}
	return repairs, rows.Err()
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.CompanyID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, company_id, name, phone, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, customer.ID, customer.CompanyID, customer.Name, customer.Phone, customer.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	if payment.CompanyID == "" || payment.AmountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, company_id, reference_id, kind, amount_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, payment.ID, payment.CompanyID, payment.ReferenceID, payment.Kind, payment.AmountCents, payment.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := payment
	return &created, nil
}

func (s *Store) CreateSMSLog(ctx context.Context, entry domain.SMSLog) (*domain.SMSLog, error) {
	if entry.CompanyID == "" || entry.Recipient == "" {
		return nil, store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = xid.New("sms")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sms_logs (id, company_id, recipient, message, cost_credit, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.CompanyID, entry.Recipient, entry.Message, entry.CostCredit, entry.Status, entry.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) CreateActivityLog(ctx context.Context, entry domain.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("act")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, company_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.CompanyID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListActivityLogs(ctx context.Context, companyID string, from time.Time, to time.Time, limit int) ([]domain.ActivityLog, error) {
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM activity_logs
		WHERE ($1 = '' OR company_id = $1) AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at DESC
		LIMIT $4
	`, companyID, from, to, nullableLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.ActivityLog, 0, 64)
	for rows.Next() {
		var l domain.ActivityLog
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.ActorUsername, &l.ActorRole, &l.Action, &l.EntityType, &l.EntityID, &l.Detail, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *Store) CreateCatalogItem(ctx context.Context, item domain.CatalogItem) (*domain.CatalogItem, error) {
	switch item.Kind {
	case domain.CatalogKindCategory, domain.CatalogKindBrand, domain.CatalogKindSubcategory:
	default:
		return nil, store.ErrInvalidInput
	}
	if item.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if item.ID == "" {
		item.ID = xid.New("cat")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_items (id, kind, name, created_at)
		VALUES ($1,$2,$3,$4)
	`, item.ID, item.Kind, item.Name, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListCatalogItems(ctx context.Context, kind string) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, name, created_at
		FROM catalog_items
		WHERE ($1 = '' OR kind = $1)
		ORDER BY kind, name
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.CatalogItem, 0, 16)
	for rows.Next() {
		var item domain.CatalogItem
		if err := rows.Scan(&item.ID, &item.Kind, &item.Name, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) SetSetting(ctx context.Context, key string, value string) (*domain.Setting, error) {
	if key == "" {
		return nil, store.ErrInvalidInput
	}
	setting := domain.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, setting.Key, setting.Value, setting.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (s *Store) GetSetting(ctx context.Context, key string) (*domain.Setting, error) {
	var setting domain.Setting
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, updated_at FROM settings WHERE key = $1
	`, key).Scan(&setting.Key, &setting.Value, &setting.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (s *Store) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, updated_at FROM settings ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make([]domain.Setting, 0, 16)
	for rows.Next() {
		var setting domain.Setting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.UpdatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

func (s *Store) CountCompanyRows(ctx context.Context, companyID string) (map[string]int64, error) {
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(domain.CompanyTables()))
	for _, table := range domain.CompanyTables() {
		var n int64
		// Table names come from the fixed allow-list above, never from input.
		query := fmt.Sprintf(`SELECT count(*) FROM %s WHERE company_id = $1`, table)
		if err := s.db.QueryRowContext(ctx, query, companyID).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

func (s *Store) CountSystemRows(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(domain.SystemTables()))
	for _, table := range domain.CompanyTables() {
		var n int64
		// Platform-level audit rows (empty company_id) sit outside the purge
		// scope, so they are never counted.
		query := fmt.Sprintf(`SELECT count(*) FROM %s`, table)
		if table == domain.TableActivityLogs {
			query += ` WHERE company_id <> ''`
		}
		if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}

	var companies int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM companies`).Scan(&companies); err != nil {
		return nil, err
	}
	counts[domain.TableCompanies] = companies

	// System admins (company_id IS NULL) survive a system reset, so they are
	// never counted.
	var users int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE company_id IS NOT NULL`).Scan(&users); err != nil {
		return nil, err
	}
	counts[domain.TableUsers] = users
	return counts, nil
}

func (s *Store) ExportCompanyData(ctx context.Context, companyID string) (*domain.DataExport, error) {
	company, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	export := &domain.DataExport{
		Scope:      domain.ScopeCompany,
		TargetID:   companyID,
		ExportedAt: time.Now().UTC(),
		Companies:  []domain.Company{*company},
	}
	if err := s.fillExport(ctx, export, companyID); err != nil {
		return nil, err
	}
	return export, nil
}

func (s *Store) ExportSystemData(ctx context.Context) (*domain.DataExport, error) {
	export := &domain.DataExport{
		Scope:      domain.ScopeSystem,
		ExportedAt: time.Now().UTC(),
	}

	companies, err := s.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	export.Companies = companies

	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	export.Users = users

	if err := s.fillExport(ctx, export, ""); err != nil {
		return nil, err
	}
	return export, nil
}

// fillExport loads the transactional tables. An empty companyID means all
// companies.
func (s *Store) fillExport(ctx context.Context, export *domain.DataExport, companyID string) error {
	products, err := s.queryProducts(ctx, companyID)
	if err != nil {
		return err
	}
	export.Products = products

	if err := s.querySales(ctx, companyID, &export.Sales); err != nil {
		return err
	}
	if err := s.querySwaps(ctx, companyID, &export.Swaps); err != nil {
		return err
	}
	if err := s.queryRepairs(ctx, companyID, &export.Repairs); err != nil {
		return err
	}
	if err := s.queryCustomers(ctx, companyID, &export.Customers); err != nil {
		return err
	}
	if err := s.queryPayments(ctx, companyID, &export.Payments); err != nil {
		return err
	}
	if err := s.querySMSLogs(ctx, companyID, &export.SMSLogs); err != nil {
		return err
	}
	logs, err := s.ListActivityLogs(ctx, companyID, time.Time{}, time.Time{}, 0)
	if err != nil {
		return err
	}
	if companyID == "" {
		// A system export covers company-owned rows only; platform-level
		// audit entries stay behind.
		scoped := logs[:0]
		for _, l := range logs {
			if l.CompanyID != "" {
				scoped = append(scoped, l)
			}
		}
		logs = scoped
	}
	export.ActivityLogs = logs
	return nil
}

func (s *Store) queryProducts(ctx context.Context, companyID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, category, brand, price_cents, stock_qty, image_path, created_at
		FROM products WHERE ($1 = '' OR company_id = $1) ORDER BY id
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Category, &p.Brand, &p.PriceCents, &p.StockQty, &p.ImagePath, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) querySales(ctx context.Context, companyID string, dest *[]domain.Sale) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, product_id, customer_id, qty, total_cents, sold_by, created_at
		FROM sales WHERE ($1 = '' OR company_id = $1) ORDER BY id
	`, companyID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.Sale
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.ProductID, &r.CustomerID, &r.Qty, &r.TotalCents, &r.SoldBy, &r.CreatedAt); err != nil {
			return err
		}
		*dest = append(*dest, r)
	}
	return rows.Err()
}

func (s *Store) querySwaps(ctx context.Context, companyID string, dest *[]domain.Swap) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, given_device, received_device, top_up_cents, created_at
		FROM swaps WHERE ($1 = '' OR company_id = $1) ORDER BY id
	`, companyID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.Swap
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.GivenDevice, &r.ReceivedDevice, &r.TopUpCents, &r.CreatedAt); err != nil {
			return err
		}
		*dest = append(*dest, r)
	}
	return rows.Err()
}

func (s *Store) queryRepairs(ctx context.Context, companyID string, dest *[]domain.Repair) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, customer_id, device, fault, status, cost_cents, photo_path, created_at, completed_at
		FROM repairs WHERE ($1 = '' OR company_id = $1) ORDER BY id
	`, companyID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.Repair
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.CustomerID, &r.Device, &r.Fault, &r.Status, &r.CostCents, &r.PhotoPath, &r.CreatedAt, &r.CompletedAt); err != nil {
			return err
		}
		*dest = append(*dest, r)
	}
	return rows.Err()
}

func (s *Store) queryCustomers(ctx context.Context, companyID string, dest *[]domain.Customer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, phone, created_at
		FROM customers WHERE ($1 = '' OR company_id = $1) ORDER BY id
	`, companyID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.Customer
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Name, &r.Phone, &r.CreatedAt); err != nil {
			return err
		}
		*dest = append(*dest, r)
	}
	return rows.Err()
}

func (s *Store) queryPayments(ctx context.Context, companyID string, dest *[]domain.Payment) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, reference_id, kind, amount_cents, created_at
		FROM payments WHERE ($1 = '' OR company_id = $1) ORDER BY id
	`, companyID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.Payment
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.ReferenceID, &r.Kind, &r.AmountCents, &r.CreatedAt); err != nil {
			return err
		}
		*dest = append(*dest, r)
	}
	return rows.Err()
}

func (s *Store) querySMSLogs(ctx context.Context, companyID string, dest *[]domain.SMSLog) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, recipient, message, cost_credit, status, created_at
		FROM sms_logs WHERE ($1 = '' OR company_id = $1) ORDER BY id
	`, companyID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r domain.SMSLog
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Recipient, &r.Message, &r.CostCredit, &r.Status, &r.CreatedAt); err != nil {
			return err
		}
		*dest = append(*dest, r)
	}
	return rows.Err()
}

// PurgeCompanyData deletes every transactional row belonging to one company
// inside a single serializable transaction. The company row and its admin
// accounts survive. Reported counts come from RowsAffected on each delete,
// so they are exact regardless of what any earlier estimate said.
func (s *Store) PurgeCompanyData(ctx context.Context, companyID string) (*store.PurgeResult, error) {
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result := &store.PurgeResult{RowCounts: make(map[string]int64, len(domain.CompanyTables()))}

	paths, err := collectFilePaths(ctx, tx, companyID)
	if err != nil {
		return nil, err
	}
	result.FilePaths = paths

	for _, table := range domain.CompanyTables() {
		query := fmt.Sprintf(`DELETE FROM %s WHERE company_id = $1`, table)
		res, err := tx.ExecContext(ctx, query, companyID)
		if err != nil {
			return nil, fmt.Errorf("purge %s: %w", table, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		result.RowCounts[table] = affected
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// PurgeSystemData wipes all company data, company rows and company-bound
// users in one transaction. System admin accounts, reset actions, backup
// records and restore points are left untouched.
func (s *Store) PurgeSystemData(ctx context.Context) (*store.PurgeResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result := &store.PurgeResult{RowCounts: make(map[string]int64, len(domain.SystemTables()))}

	paths, err := collectFilePaths(ctx, tx, "")
	if err != nil {
		return nil, err
	}
	result.FilePaths = paths

	for _, table := range domain.CompanyTables() {
		query := fmt.Sprintf(`DELETE FROM %s`, table)
		if table == domain.TableActivityLogs {
			query += ` WHERE company_id <> ''`
		}
		res, err := tx.ExecContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("purge %s: %w", table, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		result.RowCounts[table] = affected
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE company_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	if result.RowCounts[domain.TableUsers], err = res.RowsAffected(); err != nil {
		return nil, err
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM companies`)
	if err != nil {
		return nil, err
	}
	if result.RowCounts[domain.TableCompanies], err = res.RowsAffected(); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// collectFilePaths gathers product image and repair photo paths before the
// deletes so the cleanup worker can remove them after commit.
func collectFilePaths(ctx context.Context, tx *sql.Tx, companyID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT image_path FROM products WHERE image_path <> '' AND ($1 = '' OR company_id = $1)
		UNION ALL
		SELECT photo_path FROM repairs WHERE photo_path <> '' AND ($1 = '' OR company_id = $1)
	`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ImportCompanyData replays an export in one transaction. With merge=true,
// rows whose ids already exist get fresh ids and references to remapped
// products and customers are rewritten before dependent rows are inserted.
func (s *Store) ImportCompanyData(ctx context.Context, companyID string, export *domain.DataExport, merge bool) (int64, int, error) {
	if export == nil {
		return 0, 0, store.ErrInvalidInput
	}
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return 0, 0, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	restored, tables, err := importTx(ctx, tx, companyID, export, merge)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return restored, tables, nil
}

// ReplaceCompanyData deletes a company's transactional rows and replays the
// export inside the same transaction, so a failed restore rolls back to the
// pre-restore state instead of leaving the company emptied.
func (s *Store) ReplaceCompanyData(ctx context.Context, companyID string, export *domain.DataExport) (int64, int, error) {
	if export == nil {
		return 0, 0, store.ErrInvalidInput
	}
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return 0, 0, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range domain.CompanyTables() {
		query := fmt.Sprintf(`DELETE FROM %s WHERE company_id = $1`, table)
		if _, err := tx.ExecContext(ctx, query, companyID); err != nil {
			return 0, 0, fmt.Errorf("replace %s: %w", table, err)
		}
	}

	restored, tables, err := importTx(ctx, tx, companyID, export, false)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return restored, tables, nil
}

func importTx(ctx context.Context, tx *sql.Tx, companyID string, export *domain.DataExport, merge bool) (int64, int, error) {
	var restored int64
	tables := 0

	productIDs := make(map[string]string, len(export.Products))
	customerIDs := make(map[string]string, len(export.Customers))

	if len(export.Products) > 0 {
		for _, r := range export.Products {
			id := r.ID
			if merge {
				if exists, err := rowExists(ctx, tx, "products", id); err != nil {
					return 0, 0, err
				} else if exists {
					id = xid.New("prd")
					productIDs[r.ID] = id
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO products (id, company_id, name, category, brand, price_cents, stock_qty, image_path, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`, id, companyID, r.Name, r.Category, r.Brand, r.PriceCents, r.StockQty, r.ImagePath, r.CreatedAt)
			if err != nil {
				return 0, 0, fmt.Errorf("import products: %w", err)
			}
			restored++
		}
		tables++
	}
	if len(export.Customers) > 0 {
		for _, r := range export.Customers {
			id := r.ID
			if merge {
				if exists, err := rowExists(ctx, tx, "customers", id); err != nil {
					return 0, 0, err
				} else if exists {
					id = xid.New("cus")
					customerIDs[r.ID] = id
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO customers (id, company_id, name, phone, created_at)
				VALUES ($1,$2,$3,$4,$5)
			`, id, companyID, r.Name, r.Phone, r.CreatedAt)
			if err != nil {
				return 0, 0, fmt.Errorf("import customers: %w", err)
			}
			restored++
		}
		tables++
	}
	if len(export.Sales) > 0 {
		for _, r := range export.Sales {
			id := r.ID
			if merge {
				if exists, err := rowExists(ctx, tx, "sales", id); err != nil {
					return 0, 0, err
				} else if exists {
					id = xid.New("sal")
				}
			}
			if mapped, ok := productIDs[r.ProductID]; ok {
				r.ProductID = mapped
			}
			if mapped, ok := customerIDs[r.CustomerID]; ok {
				r.CustomerID = mapped
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sales (id, company_id, product_id, customer_id, qty, total_cents, sold_by, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, id, companyID, r.ProductID, r.CustomerID, r.Qty, r.TotalCents, r.SoldBy, r.CreatedAt)
			if err != nil {
				return 0, 0, fmt.Errorf("import sales: %w", err)
			}
			restored++
		}
		tables++
	}
	if len(export.Swaps) > 0 {
		for _, r := range export.Swaps {
			id := r.ID
			if merge {
				if exists, err := rowExists(ctx, tx, "swaps", id); err != nil {
					return 0, 0, err
				} else if exists {
					id = xid.New("swp")
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO swaps (id, company_id, given_device, received_device, top_up_cents, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, id, companyID, r.GivenDevice, r.ReceivedDevice, r.TopUpCents, r.CreatedAt)
			if err != nil {
				return 0, 0, fmt.Errorf("import swaps: %w", err)
			}
			restored++
		}
		tables++
	}
	if len(export.Repairs) > 0 {
		for _, r := range export.Repairs {
			id := r.ID
			if merge {
				if exists, err := rowExists(ctx, tx, "repairs", id); err != nil {
					return 0, 0, err
				} else if exists {
					id = xid.New("rep")
				}
			}
			if mapped, ok := customerIDs[r.CustomerID]; ok {
				r.CustomerID = mapped
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO repairs (id, company_id, customer_id, device, fault, status, cost_cents, photo_path, created_at, completed_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			`, id, companyID, r.CustomerID, r.Device, r.Fault, r.Status, r.CostCents, r.PhotoPath, r.CreatedAt, r.CompletedAt)
			if err != nil {
				return 0, 0, fmt.Errorf("import repairs: %w", err)
			}
			restored++
		}
		tables++
	}
	if len(export.Payments) > 0 {
		for _, r := range export.Payments {
			id := r.ID
			if merge {
				if exists, err := rowExists(ctx, tx, "payments", id); err != nil {
					return 0, 0, err
				} else if exists {
					id = xid.New("pay")
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO payments (id, company_id, reference_id, kind, amount_cents, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, id, companyID, r.ReferenceID, r.Kind, r.AmountCents, r.CreatedAt)
			if err != nil {
				return 0, 0, fmt.Errorf("import payments: %w", err)
			}
			restored++
		}
		tables++
	}
	if len(export.SMSLogs) > 0 {
		for _, r := range export.SMSLogs {
			id := r.ID
			if merge {
				if exists, err := rowExists(ctx, tx, "sms_logs", id); err != nil {
					return 0, 0, err
				} else if exists {
					id = xid.New("sms")
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sms_logs (id, company_id, recipient, message, cost_credit, status, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)
			`, id, companyID, r.Recipient, r.Message, r.CostCredit, r.Status, r.CreatedAt)
			if err != nil {
				return 0, 0, fmt.Errorf("import sms_logs: %w", err)
			}
			restored++
		}
		tables++
	}
	if len(export.ActivityLogs) > 0 {
		for _, r := range export.ActivityLogs {
			id := r.ID
			if merge {
				if exists, err := rowExists(ctx, tx, "activity_logs", id); err != nil {
					return 0, 0, err
				} else if exists {
					id = xid.New("act")
				}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO activity_logs (id, company_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`, id, companyID, r.ActorUsername, r.ActorRole, r.Action, r.EntityType, r.EntityID, r.Detail, r.CreatedAt)
			if err != nil {
				return 0, 0, fmt.Errorf("import activity_logs: %w", err)
			}
			restored++
		}
		tables++
	}

	return restored, tables, nil
}

func rowExists(ctx context.Context, tx *sql.Tx, table string, id string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := tx.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) CreateResetAction(ctx context.Context, action domain.ResetAction) (*domain.ResetAction, error) {
	if action.ID == "" {
		action.ID = xid.New("rst")
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}
	counts, err := marshalCounts(action.RowCounts)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reset_actions (id, scope, target_id, mode, status, row_counts, total_affected_rows, backup_reference, requested_by, error, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, action.ID, action.Scope, action.TargetID, action.Mode, action.Status, counts,
		action.TotalAffectedRows, action.BackupReference, action.RequestedBy, action.Error, action.CreatedAt, action.CompletedAt)
	if err != nil {
		return nil, err
	}
	created := action
	return &created, nil
}

func (s *Store) UpdateResetAction(ctx context.Context, action domain.ResetAction) (*domain.ResetAction, error) {
	counts, err := marshalCounts(action.RowCounts)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reset_actions
		SET status = $2, row_counts = $3, total_affected_rows = $4, backup_reference = $5, error = $6, completed_at = $7
		WHERE id = $1
	`, action.ID, action.Status, counts, action.TotalAffectedRows, action.BackupReference, action.Error, action.CompletedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := action
	return &updated, nil
}

func (s *Store) GetResetAction(ctx context.Context, actionID string) (*domain.ResetAction, error) {
	var a domain.ResetAction
	var counts []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scope, target_id, mode, status, row_counts, total_affected_rows, backup_reference, requested_by, error, created_at, completed_at
		FROM reset_actions WHERE id = $1
	`, actionID).Scan(&a.ID, &a.Scope, &a.TargetID, &a.Mode, &a.Status, &counts,
		&a.TotalAffectedRows, &a.BackupReference, &a.RequestedBy, &a.Error, &a.CreatedAt, &a.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &a.RowCounts); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func (s *Store) ListResetActions(ctx context.Context, scope string, limit int) ([]domain.ResetAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, target_id, mode, status, row_counts, total_affected_rows, backup_reference, requested_by, error, created_at, completed_at
		FROM reset_actions
		WHERE ($1 = '' OR scope = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, scope, nullableLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := make([]domain.ResetAction, 0, 32)
	for rows.Next() {
		var a domain.ResetAction
		var counts []byte
		if err := rows.Scan(&a.ID, &a.Scope, &a.TargetID, &a.Mode, &a.Status, &counts,
			&a.TotalAffectedRows, &a.BackupReference, &a.RequestedBy, &a.Error, &a.CreatedAt, &a.CompletedAt); err != nil {
			return nil, err
		}
		if len(counts) > 0 {
			if err := json.Unmarshal(counts, &a.RowCounts); err != nil {
				return nil, err
			}
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *Store) CreateBackup(ctx context.Context, backup domain.Backup) (*domain.Backup, error) {
	if backup.Scope == "" || backup.FileName == "" {
		return nil, store.ErrInvalidInput
	}
	if backup.ID == "" {
		backup.ID = xid.New("bak")
	}
	if backup.CreatedAt.IsZero() {
		backup.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backups (id, scope, target_id, file_name, file_size_bytes, status, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, backup.ID, backup.Scope, backup.TargetID, backup.FileName, backup.FileSizeBytes, backup.Status, backup.CreatedBy, backup.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := backup
	return &created, nil
}

func (s *Store) UpdateBackupStatus(ctx context.Context, backupID string, status string, sizeBytes int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE backups SET status = $2, file_size_bytes = $3 WHERE id = $1
	`, backupID, status, sizeBytes)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetBackup(ctx context.Context, backupID string) (*domain.Backup, error) {
	var b domain.Backup
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scope, target_id, file_name, file_size_bytes, status, created_by, created_at
		FROM backups WHERE id = $1
	`, backupID).Scan(&b.ID, &b.Scope, &b.TargetID, &b.FileName, &b.FileSizeBytes, &b.Status, &b.CreatedBy, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBackups(ctx context.Context, scope string, targetID string, limit int) ([]domain.Backup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, target_id, file_name, file_size_bytes, status, created_by, created_at
		FROM backups
		WHERE ($1 = '' OR scope = $1) AND ($2 = '' OR target_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, scope, targetID, nullableLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	backups := make([]domain.Backup, 0, 32)
	for rows.Next() {
		var b domain.Backup
		if err := rows.Scan(&b.ID, &b.Scope, &b.TargetID, &b.FileName, &b.FileSizeBytes, &b.Status, &b.CreatedBy, &b.CreatedAt); err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	return backups, rows.Err()
}

func (s *Store) CreateRestorePoint(ctx context.Context, point domain.RestorePoint) (*domain.RestorePoint, error) {
	if point.CompanyID == "" || point.Name == "" || point.BackupID == "" {
		return nil, store.ErrInvalidInput
	}
	if point.ID == "" {
		point.ID = xid.New("rp")
	}
	if point.CreatedAt.IsZero() {
		point.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO restore_points (id, company_id, name, description, backup_id, total_records, restore_count, restored_at, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, point.ID, point.CompanyID, point.Name, point.Description, point.BackupID,
		point.TotalRecords, point.RestoreCount, point.RestoredAt, point.CreatedBy, point.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := point
	return &created, nil
}

func (s *Store) GetRestorePoint(ctx context.Context, pointID string) (*domain.RestorePoint, error) {
	var p domain.RestorePoint
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, description, backup_id, total_records, restore_count, restored_at, created_by, created_at
		FROM restore_points WHERE id = $1
	`, pointID).Scan(&p.ID, &p.CompanyID, &p.Name, &p.Description, &p.BackupID,
		&p.TotalRecords, &p.RestoreCount, &p.RestoredAt, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListRestorePoints(ctx context.Context, companyID string, limit int) ([]domain.RestorePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id, name, description, backup_id, total_records, restore_count, restored_at, created_by, created_at
		FROM restore_points
		WHERE ($1 = '' OR company_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, companyID, nullableLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.RestorePoint, 0, 16)
	for rows.Next() {
		var p domain.RestorePoint
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Description, &p.BackupID,
			&p.TotalRecords, &p.RestoreCount, &p.RestoredAt, &p.CreatedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *Store) DeleteRestorePoint(ctx context.Context, pointID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM restore_points WHERE id = $1`, pointID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkRestorePointApplied(ctx context.Context, pointID string, at time.Time) (*domain.RestorePoint, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE restore_points SET restore_count = restore_count + 1, restored_at = $2 WHERE id = $1
	`, pointID, at)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetRestorePoint(ctx, pointID)
}

func marshalCounts(counts map[string]int64) ([]byte, error) {
	if counts == nil {
		return nil, nil
	}
	return json.Marshal(counts)
}

// nullableLimit turns a non-positive limit into NULL so LIMIT is a no-op.
func nullableLimit(limit int) any {
	if limit < 1 {
		return nil
	}
	return limit
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
