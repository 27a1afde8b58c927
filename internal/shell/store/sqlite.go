package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/canopy-host/canopy/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Store Method Dispatch
// =============================================================================

func (s *SQLiteStore) ResolveTenant(ctx context.Context, id, username, homeDir string) (*domain.Tenant, error) {
	return resolveTenant(ctx, s.db, id, username, homeDir)
}

func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	return getTenant(ctx, s.db, id)
}

func (s *SQLiteStore) CreateContainer(ctx context.Context, c *domain.Container) error {
	return createContainer(ctx, s.db, c)
}

func (s *SQLiteStore) GetContainer(ctx context.Context, tenantID, id string) (*domain.Container, error) {
	return getContainer(ctx, s.db, tenantID, id)
}

func (s *SQLiteStore) GetContainerByName(ctx context.Context, tenantID, name string) (*domain.Container, error) {
	return getContainerByName(ctx, s.db, tenantID, name)
}

func (s *SQLiteStore) UpdateContainer(ctx context.Context, c *domain.Container) error {
	return updateContainer(ctx, s.db, c)
}

func (s *SQLiteStore) DeleteContainer(ctx context.Context, tenantID, id string) error {
	return deleteContainer(ctx, s.db, tenantID, id)
}

func (s *SQLiteStore) ListContainers(ctx context.Context, tenantID string, opts ListOptions) ([]domain.Container, error) {
	return listContainers(ctx, s.db, tenantID, opts)
}

func (s *SQLiteStore) PortInUse(ctx context.Context, tenantID string, hostPort int, proto domain.Protocol) (bool, error) {
	return portInUse(ctx, s.db, tenantID, hostPort, proto)
}

func (s *SQLiteStore) ListBoundPorts(ctx context.Context, tenantID string, proto domain.Protocol) ([]int, error) {
	return listBoundPorts(ctx, s.db, tenantID, proto)
}

func (s *SQLiteStore) CreateTemplate(ctx context.Context, t *domain.Template) error {
	return createTemplate(ctx, s.db, t)
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	return getTemplate(ctx, s.db, id)
}

func (s *SQLiteStore) GetTemplateBySlug(ctx context.Context, slug string) (*domain.Template, error) {
	return getTemplateBySlug(ctx, s.db, slug)
}

func (s *SQLiteStore) UpdateTemplate(ctx context.Context, t *domain.Template) error {
	return updateTemplate(ctx, s.db, t)
}

func (s *SQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	return deleteTemplate(ctx, s.db, id)
}

func (s *SQLiteStore) ListTemplates(ctx context.Context, opts ListOptions) ([]domain.Template, error) {
	return listTemplates(ctx, s.db, opts)
}

func (s *SQLiteStore) ListAllowedTemplates(ctx context.Context) ([]domain.Template, error) {
	return listAllowedTemplates(ctx, s.db)
}

func (s *SQLiteStore) CountTemplates(ctx context.Context) (int, error) {
	return countTemplates(ctx, s.db)
}

func (s *SQLiteStore) CreateStack(ctx context.Context, st *domain.Stack) error {
	return createStack(ctx, s.db, st)
}

func (s *SQLiteStore) GetStack(ctx context.Context, tenantID, id string) (*domain.Stack, error) {
	return getStack(ctx, s.db, tenantID, id)
}

func (s *SQLiteStore) UpdateStack(ctx context.Context, st *domain.Stack) error {
	return updateStack(ctx, s.db, st)
}

func (s *SQLiteStore) DeleteStack(ctx context.Context, tenantID, id string) error {
	return deleteStack(ctx, s.db, tenantID, id)
}

func (s *SQLiteStore) ListStacks(ctx context.Context, tenantID string, opts ListOptions) ([]domain.Stack, error) {
	return listStacks(ctx, s.db, tenantID, opts)
}

func (s *SQLiteStore) SlugInUse(ctx context.Context, tenantID, slug string) (bool, error) {
	return slugInUse(ctx, s.db, tenantID, slug)
}

func (s *SQLiteStore) CreateAuditEvent(ctx context.Context, ev *domain.AuditEvent) error {
	return createAuditEvent(ctx, s.db, ev)
}

func (s *SQLiteStore) ListAuditEvents(ctx context.Context, tenantID string, limit int) ([]domain.AuditEvent, error) {
	return listAuditEvents(ctx, s.db, tenantID, limit)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) ResolveTenant(ctx context.Context, id, username, homeDir string) (*domain.Tenant, error) {
	return resolveTenant(ctx, s.tx, id, username, homeDir)
}

func (s *txSQLiteStore) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	return getTenant(ctx, s.tx, id)
}

func (s *txSQLiteStore) CreateContainer(ctx context.Context, c *domain.Container) error {
	return createContainer(ctx, s.tx, c)
}

func (s *txSQLiteStore) GetContainer(ctx context.Context, tenantID, id string) (*domain.Container, error) {
	return getContainer(ctx, s.tx, tenantID, id)
}

func (s *txSQLiteStore) GetContainerByName(ctx context.Context, tenantID, name string) (*domain.Container, error) {
	return getContainerByName(ctx, s.tx, tenantID, name)
}

func (s *txSQLiteStore) UpdateContainer(ctx context.Context, c *domain.Container) error {
	return updateContainer(ctx, s.tx, c)
}

func (s *txSQLiteStore) DeleteContainer(ctx context.Context, tenantID, id string) error {
	return deleteContainer(ctx, s.tx, tenantID, id)
}

func (s *txSQLiteStore) ListContainers(ctx context.Context, tenantID string, opts ListOptions) ([]domain.Container, error) {
	return listContainers(ctx, s.tx, tenantID, opts)
}

func (s *txSQLiteStore) PortInUse(ctx context.Context, tenantID string, hostPort int, proto domain.Protocol) (bool, error) {
	return portInUse(ctx, s.tx, tenantID, hostPort, proto)
}

func (s *txSQLiteStore) ListBoundPorts(ctx context.Context, tenantID string, proto domain.Protocol) ([]int, error) {
	return listBoundPorts(ctx, s.tx, tenantID, proto)
}

func (s *txSQLiteStore) CreateTemplate(ctx context.Context, t *domain.Template) error {
	return createTemplate(ctx, s.tx, t)
}

func (s *txSQLiteStore) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	return getTemplate(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetTemplateBySlug(ctx context.Context, slug string) (*domain.Template, error) {
	return getTemplateBySlug(ctx, s.tx, slug)
}

func (s *txSQLiteStore) UpdateTemplate(ctx context.Context, t *domain.Template) error {
	return updateTemplate(ctx, s.tx, t)
}

func (s *txSQLiteStore) DeleteTemplate(ctx context.Context, id string) error {
	return deleteTemplate(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListTemplates(ctx context.Context, opts ListOptions) ([]domain.Template, error) {
	return listTemplates(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListAllowedTemplates(ctx context.Context) ([]domain.Template, error) {
	return listAllowedTemplates(ctx, s.tx)
}

func (s *txSQLiteStore) CountTemplates(ctx context.Context) (int, error) {
	return countTemplates(ctx, s.tx)
}

func (s *txSQLiteStore) CreateStack(ctx context.Context, st *domain.Stack) error {
	return createStack(ctx, s.tx, st)
}

func (s *txSQLiteStore) GetStack(ctx context.Context, tenantID, id string) (*domain.Stack, error) {
	return getStack(ctx, s.tx, tenantID, id)
}

func (s *txSQLiteStore) UpdateStack(ctx context.Context, st *domain.Stack) error {
	return updateStack(ctx, s.tx, st)
}

func (s *txSQLiteStore) DeleteStack(ctx context.Context, tenantID, id string) error {
	return deleteStack(ctx, s.tx, tenantID, id)
}

func (s *txSQLiteStore) ListStacks(ctx context.Context, tenantID string, opts ListOptions) ([]domain.Stack, error) {
	return listStacks(ctx, s.tx, tenantID, opts)
}

func (s *txSQLiteStore) SlugInUse(ctx context.Context, tenantID, slug string) (bool, error) {
	return slugInUse(ctx, s.tx, tenantID, slug)
}

func (s *txSQLiteStore) CreateAuditEvent(ctx context.Context, ev *domain.AuditEvent) error {
	return createAuditEvent(ctx, s.tx, ev)
}

func (s *txSQLiteStore) ListAuditEvents(ctx context.Context, tenantID string, limit int) ([]domain.AuditEvent, error) {
	return listAuditEvents(ctx, s.tx, tenantID, limit)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Row Types
// =============================================================================

type tenantRow struct {
	ID        string `db:"id"`
	Username  string `db:"username"`
	HomeDir   string `db:"home_dir"`
	CreatedAt string `db:"created_at"`
}

type containerRow struct {
	ID          string  `db:"id"`
	TenantID    string  `db:"tenant_id"`
	Name        string  `db:"name"`
	Image       string  `db:"image"`
	RuntimeID   string  `db:"runtime_id"`
	Status      string  `db:"status"`
	Env         *string `db:"env"`
	CPULimit    string  `db:"cpu_limit"`
	MemoryLimit string  `db:"memory_limit"`
	Network     string  `db:"network"`
	CreatedAt   string  `db:"created_at"`
}

type portBindingRow struct {
	ID            string `db:"id"`
	TenantID      string `db:"tenant_id"`
	ContainerID   string `db:"container_id"`
	HostPort      int    `db:"host_port"`
	ContainerPort int    `db:"container_port"`
	Protocol      string `db:"protocol"`
}

type mountRow struct {
	ID            string `db:"id"`
	ContainerID   string `db:"container_id"`
	HostPath      string `db:"host_path"`
	ContainerPath string `db:"container_path"`
	ReadOnly      bool   `db:"read_only"`
}

type templateRow struct {
	ID         string  `db:"id"`
	Name       string  `db:"name"`
	Slug       string  `db:"slug"`
	Kind       string  `db:"kind"`
	Definition string  `db:"definition"`
	Defaults   *string `db:"defaults"`
	Allowed    bool    `db:"allowed"`
	CreatedAt  string  `db:"created_at"`
	UpdatedAt  string  `db:"updated_at"`
}

type stackRow struct {
	ID          string  `db:"id"`
	TenantID    string  `db:"tenant_id"`
	TemplateID  string  `db:"template_id"`
	Name        string  `db:"name"`
	Slug        string  `db:"slug"`
	ComposePath string  `db:"compose_path"`
	Variables   *string `db:"variables"`
	Status      string  `db:"status"`
	CreatedAt   string  `db:"created_at"`
	UpdatedAt   string  `db:"updated_at"`
}

type auditEventRow struct {
	ID        string `db:"id"`
	TenantID  string `db:"tenant_id"`
	Action    string `db:"action"`
	EntityID  string `db:"entity_id"`
	Detail    string `db:"detail"`
	CreatedAt string `db:"created_at"`
}

// =============================================================================
// Tenant Implementation
// =============================================================================

func resolveTenant(ctx context.Context, exec executor, id, username, homeDir string) (*domain.Tenant, error) {
	query := `
		INSERT INTO tenants (id, username, home_dir, created_at)
		VALUES (:id, :username, :home_dir, :created_at)
		ON CONFLICT(id) DO UPDATE SET username = :username, home_dir = :home_dir`

	now := time.Now().UTC()
	_, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":         id,
		"username":   username,
		"home_dir":   homeDir,
		"created_at": now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, NewStoreError("ResolveTenant", "tenant", id, err.Error(), err)
	}

	return getTenant(ctx, exec, id)
}

func getTenant(ctx context.Context, exec executor, id string) (*domain.Tenant, error) {
	var row tenantRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM tenants WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetTenant", "tenant", id, "tenant not found", ErrNotFound)
		}
		return nil, NewStoreError("GetTenant", "tenant", id, err.Error(), err)
	}

	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	return &domain.Tenant{
		ID:        row.ID,
		Username:  row.Username,
		HomeDir:   row.HomeDir,
		CreatedAt: createdAt,
	}, nil
}

// =============================================================================
// Container Implementation
// =============================================================================

func createContainer(ctx context.Context, exec executor, c *domain.Container) error {
	envJSON, err := json.Marshal(c.Env)
	if err != nil {
		return NewStoreError("CreateContainer", "container", c.ID, "failed to serialize env", ErrInvalidData)
	}

	query := `
		INSERT INTO containers (
			id, tenant_id, name, image, runtime_id, status, env,
			cpu_limit, memory_limit, network, created_at
		) VALUES (
			:id, :tenant_id, :name, :image, :runtime_id, :status, :env,
			:cpu_limit, :memory_limit, :network, :created_at
		)`

	row := map[string]any{
		"id":           c.ID,
		"tenant_id":    c.TenantID,
		"name":         c.Name,
		"image":        c.Image,
		"runtime_id":   c.RuntimeID,
		"status":       string(c.Status),
		"env":          string(envJSON),
		"cpu_limit":    c.CPULimit,
		"memory_limit": c.MemoryLimit,
		"network":      c.Network,
		"created_at":   c.CreatedAt.Format(time.RFC3339),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: containers.id") {
			return NewStoreError("CreateContainer", "container", c.ID, "container with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: containers.tenant_id, containers.name") {
			return NewStoreError("CreateContainer", "container", c.ID, "container name already taken", ErrDuplicateName)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateContainer", "container", c.ID, "tenant not found", ErrForeignKey)
		}
		return NewStoreError("CreateContainer", "container", c.ID, err.Error(), err)
	}

	for _, pb := range c.Ports {
		if err := createPortBinding(ctx, exec, pb); err != nil {
			return err
		}
	}
	for _, m := range c.Mounts {
		if err := createMount(ctx, exec, m); err != nil {
			return err
		}
	}

	return nil
}

func createPortBinding(ctx context.Context, exec executor, pb domain.PortBinding) error {
	query := `
		INSERT INTO port_bindings (id, tenant_id, container_id, host_port, container_port, protocol)
		VALUES (:id, :tenant_id, :container_id, :host_port, :container_port, :protocol)`

	_, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":             pb.ID,
		"tenant_id":      pb.TenantID,
		"container_id":   pb.ContainerID,
		"host_port":      pb.HostPort,
		"container_port": pb.ContainerPort,
		"protocol":       string(pb.Protocol),
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: port_bindings.tenant_id, port_bindings.host_port, port_bindings.protocol") {
			return NewStoreError("CreatePortBinding", "port_binding", pb.ID, "host port already bound", ErrDuplicatePort)
		}
		return NewStoreError("CreatePortBinding", "port_binding", pb.ID, err.Error(), err)
	}
	return nil
}

func createMount(ctx context.Context, exec executor, m domain.Mount) error {
	query := `
		INSERT INTO mounts (id, container_id, host_path, container_path, read_only)
		VALUES (:id, :container_id, :host_path, :container_path, :read_only)`

	_, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":             m.ID,
		"container_id":   m.ContainerID,
		"host_path":      m.HostPath,
		"container_path": m.ContainerPath,
		"read_only":      m.ReadOnly,
	})
	if err != nil {
		return NewStoreError("CreateMount", "mount", m.ID, err.Error(), err)
	}
	return nil
}

func getContainer(ctx context.Context, exec executor, tenantID, id string) (*domain.Container, error) {
	var row containerRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM containers WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetContainer", "container", id, "container not found", ErrNotFound)
		}
		return nil, NewStoreError("GetContainer", "container", id, err.Error(), err)
	}
	return hydrateContainer(ctx, exec, &row)
}

func getContainerByName(ctx context.Context, exec executor, tenantID, name string) (*domain.Container, error) {
	var row containerRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM containers WHERE tenant_id = ? AND name = ?`, tenantID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetContainerByName", "container", name, "container not found", ErrNotFound)
		}
		return nil, NewStoreError("GetContainerByName", "container", name, err.Error(), err)
	}
	return hydrateContainer(ctx, exec, &row)
}

func updateContainer(ctx context.Context, exec executor, c *domain.Container) error {
	envJSON, err := json.Marshal(c.Env)
	if err != nil {
		return NewStoreError("UpdateContainer", "container", c.ID, "failed to serialize env", ErrInvalidData)
	}

	query := `
		UPDATE containers SET
			runtime_id = :runtime_id,
			status = :status,
			env = :env,
			cpu_limit = :cpu_limit,
			memory_limit = :memory_limit,
			network = :network
		WHERE id = :id AND tenant_id = :tenant_id`

	result, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":           c.ID,
		"tenant_id":    c.TenantID,
		"runtime_id":   c.RuntimeID,
		"status":       string(c.Status),
		"env":          string(envJSON),
		"cpu_limit":    c.CPULimit,
		"memory_limit": c.MemoryLimit,
		"network":      c.Network,
	})
	if err != nil {
		return NewStoreError("UpdateContainer", "container", c.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateContainer", "container", c.ID, "container not found", ErrNotFound)
	}

	return nil
}

func deleteContainer(ctx context.Context, exec executor, tenantID, id string) error {
	// Port bindings and mounts cascade via the FK.
	result, err := exec.ExecContext(ctx, `DELETE FROM containers WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return NewStoreError("DeleteContainer", "container", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteContainer", "container", id, "container not found", ErrNotFound)
	}

	return nil
}

func listContainers(ctx context.Context, exec executor, tenantID string, opts ListOptions) ([]domain.Container, error) {
	opts = opts.Normalize()

	var rows []containerRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM containers WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		tenantID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListContainers", "container", "", err.Error(), err)
	}

	containers := make([]domain.Container, 0, len(rows))
	for i := range rows {
		c, err := hydrateContainer(ctx, exec, &rows[i])
		if err != nil {
			return nil, err
		}
		containers = append(containers, *c)
	}

	return containers, nil
}

// hydrateContainer converts a container row and loads its bindings and mounts.
func hydrateContainer(ctx context.Context, exec executor, row *containerRow) (*domain.Container, error) {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)

	var env map[string]string
	if row.Env != nil && *row.Env != "" && *row.Env != "null" {
		if err := json.Unmarshal([]byte(*row.Env), &env); err != nil {
			return nil, NewStoreError("hydrateContainer", "container", row.ID, "failed to parse env", ErrInvalidData)
		}
	}

	var pbRows []portBindingRow
	if err := exec.SelectContext(ctx, &pbRows,
		`SELECT * FROM port_bindings WHERE container_id = ? ORDER BY host_port`, row.ID); err != nil {
		return nil, NewStoreError("hydrateContainer", "port_binding", row.ID, err.Error(), err)
	}

	var mRows []mountRow
	if err := exec.SelectContext(ctx, &mRows,
		`SELECT * FROM mounts WHERE container_id = ? ORDER BY container_path`, row.ID); err != nil {
		return nil, NewStoreError("hydrateContainer", "mount", row.ID, err.Error(), err)
	}

	c := &domain.Container{
		ID:          row.ID,
		TenantID:    row.TenantID,
		Name:        row.Name,
		Image:       row.Image,
		RuntimeID:   row.RuntimeID,
		Status:      domain.ContainerStatus(row.Status),
		Env:         env,
		CPULimit:    row.CPULimit,
		MemoryLimit: row.MemoryLimit,
		Network:     row.Network,
		CreatedAt:   createdAt,
	}
	for _, pb := range pbRows {
		c.Ports = append(c.Ports, domain.PortBinding{
			ID:            pb.ID,
			TenantID:      pb.TenantID,
			ContainerID:   pb.ContainerID,
			HostPort:      pb.HostPort,
			ContainerPort: pb.ContainerPort,
			Protocol:      domain.Protocol(pb.Protocol),
		})
	}
	for _, m := range mRows {
		c.Mounts = append(c.Mounts, domain.Mount{
			ID:            m.ID,
			ContainerID:   m.ContainerID,
			HostPath:      m.HostPath,
			ContainerPath: m.ContainerPath,
			ReadOnly:      m.ReadOnly,
		})
	}

	return c, nil
}

// =============================================================================
// Port Allocation Table
// =============================================================================

func portInUse(ctx context.Context, exec executor, tenantID string, hostPort int, proto domain.Protocol) (bool, error) {
	var count int
	err := exec.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM port_bindings WHERE tenant_id = ? AND host_port = ? AND protocol = ?`,
		tenantID, hostPort, string(proto))
	if err != nil {
		return false, NewStoreError("PortInUse", "port_binding", "", err.Error(), err)
	}
	return count > 0, nil
}

func listBoundPorts(ctx context.Context, exec executor, tenantID string, proto domain.Protocol) ([]int, error) {
	var ports []int
	err := exec.SelectContext(ctx, &ports,
		`SELECT host_port FROM port_bindings WHERE tenant_id = ? AND protocol = ? ORDER BY host_port`,
		tenantID, string(proto))
	if err != nil {
		return nil, NewStoreError("ListBoundPorts", "port_binding", "", err.Error(), err)
	}
	return ports, nil
}

// =============================================================================
// Template Implementation
// =============================================================================

func createTemplate(ctx context.Context, exec executor, t *domain.Template) error {
	defaultsJSON, err := json.Marshal(t.Defaults)
	if err != nil {
		return NewStoreError("CreateTemplate", "template", t.ID, "failed to serialize defaults", ErrInvalidData)
	}

	query := `
		INSERT INTO templates (id, name, slug, kind, definition, defaults, allowed, created_at, updated_at)
		VALUES (:id, :name, :slug, :kind, :definition, :defaults, :allowed, :created_at, :updated_at)`

	_, err = exec.NamedExecContext(ctx, query, map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"slug":       t.Slug,
		"kind":       string(t.Kind),
		"definition": t.Definition,
		"defaults":   string(defaultsJSON),
		"allowed":    t.Allowed,
		"created_at": t.CreatedAt.Format(time.RFC3339),
		"updated_at": t.UpdatedAt.Format(time.RFC3339),
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: templates.id") {
			return NewStoreError("CreateTemplate", "template", t.ID, "template with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: templates.slug") {
			return NewStoreError("CreateTemplate", "template", t.ID, "template with this slug already exists", ErrDuplicateSlug)
		}
		return NewStoreError("CreateTemplate", "template", t.ID, err.Error(), err)
	}

	return nil
}

func getTemplate(ctx context.Context, exec executor, id string) (*domain.Template, error) {
	var row templateRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM templates WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetTemplate", "template", id, "template not found", ErrNotFound)
		}
		return nil, NewStoreError("GetTemplate", "template", id, err.Error(), err)
	}
	return rowToTemplate(&row)
}

func getTemplateBySlug(ctx context.Context, exec executor, slug string) (*domain.Template, error) {
	var row templateRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM templates WHERE slug = ?`, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetTemplateBySlug", "template", slug, "template not found", ErrNotFound)
		}
		return nil, NewStoreError("GetTemplateBySlug", "template", slug, err.Error(), err)
	}
	return rowToTemplate(&row)
}

func updateTemplate(ctx context.Context, exec executor, t *domain.Template) error {
	defaultsJSON, err := json.Marshal(t.Defaults)
	if err != nil {
		return NewStoreError("UpdateTemplate", "template", t.ID, "failed to serialize defaults", ErrInvalidData)
	}

	query := `
		UPDATE templates SET
			name = :name,
			slug = :slug,
			kind = :kind,
			definition = :definition,
			defaults = :defaults,
			allowed = :allowed,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":         t.ID,
		"name":       t.Name,
		"slug":       t.Slug,
		"kind":       string(t.Kind),
		"definition": t.Definition,
		"defaults":   string(defaultsJSON),
		"allowed":    t.Allowed,
		"updated_at": t.UpdatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return NewStoreError("UpdateTemplate", "template", t.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateTemplate", "template", t.ID, "template not found", ErrNotFound)
	}

	return nil
}

func deleteTemplate(ctx context.Context, exec executor, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("DeleteTemplate", "template", id, "template has stacks", ErrForeignKey)
		}
		return NewStoreError("DeleteTemplate", "template", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteTemplate", "template", id, "template not found", ErrNotFound)
	}

	return nil
}

func listTemplates(ctx context.Context, exec executor, opts ListOptions) ([]domain.Template, error) {
	opts = opts.Normalize()

	var rows []templateRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM templates ORDER BY created_at DESC LIMIT ? OFFSET ?`, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListTemplates", "template", "", err.Error(), err)
	}

	return rowsToTemplates(rows)
}

func listAllowedTemplates(ctx context.Context, exec executor) ([]domain.Template, error) {
	var rows []templateRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM templates WHERE allowed = 1 ORDER BY name`)
	if err != nil {
		return nil, NewStoreError("ListAllowedTemplates", "template", "", err.Error(), err)
	}

	return rowsToTemplates(rows)
}

func countTemplates(ctx context.Context, exec executor) (int, error) {
	var count int
	err := exec.GetContext(ctx, &count, `SELECT COUNT(*) FROM templates`)
	if err != nil {
		return 0, NewStoreError("CountTemplates", "template", "", err.Error(), err)
	}
	return count, nil
}

func rowsToTemplates(rows []templateRow) ([]domain.Template, error) {
	templates := make([]domain.Template, 0, len(rows))
	for i := range rows {
		t, err := rowToTemplate(&rows[i])
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, nil
}

func rowToTemplate(row *templateRow) (*domain.Template, error) {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	var defaults map[string]string
	if row.Defaults != nil && *row.Defaults != "" && *row.Defaults != "null" {
		if err := json.Unmarshal([]byte(*row.Defaults), &defaults); err != nil {
			return nil, NewStoreError("rowToTemplate", "template", row.ID, "failed to parse defaults", ErrInvalidData)
		}
	}

	return &domain.Template{
		ID:         row.ID,
		Name:       row.Name,
		Slug:       row.Slug,
		Kind:       domain.TemplateKind(row.Kind),
		Definition: row.Definition,
		Defaults:   defaults,
		Allowed:    row.Allowed,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

// =============================================================================
// Stack Implementation
// =============================================================================

func createStack(ctx context.Context, exec executor, st *domain.Stack) error {
	variablesJSON, err := json.Marshal(st.Variables)
	if err != nil {
		return NewStoreError("CreateStack", "stack", st.ID, "failed to serialize variables", ErrInvalidData)
	}

	query := `
		INSERT INTO stacks (
			id, tenant_id, template_id, name, slug, compose_path,
			variables, status, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :template_id, :name, :slug, :compose_path,
			:variables, :status, :created_at, :updated_at
		)`

	_, err = exec.NamedExecContext(ctx, query, map[string]any{
		"id":           st.ID,
		"tenant_id":    st.TenantID,
		"template_id":  st.TemplateID,
		"name":         st.Name,
		"slug":         st.Slug,
		"compose_path": st.ComposePath,
		"variables":    string(variablesJSON),
		"status":       string(st.Status),
		"created_at":   st.CreatedAt.Format(time.RFC3339),
		"updated_at":   st.UpdatedAt.Format(time.RFC3339),
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: stacks.id") {
			return NewStoreError("CreateStack", "stack", st.ID, "stack with this ID already exists", ErrDuplicateID)
		}
		if strings.Contains(err.Error(), "UNIQUE constraint failed: stacks.tenant_id, stacks.slug") {
			return NewStoreError("CreateStack", "stack", st.ID, "stack slug already taken", ErrDuplicateSlug)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return NewStoreError("CreateStack", "stack", st.ID, "template or tenant not found", ErrForeignKey)
		}
		return NewStoreError("CreateStack", "stack", st.ID, err.Error(), err)
	}

	return nil
}

func getStack(ctx context.Context, exec executor, tenantID, id string) (*domain.Stack, error) {
	var row stackRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM stacks WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetStack", "stack", id, "stack not found", ErrNotFound)
		}
		return nil, NewStoreError("GetStack", "stack", id, err.Error(), err)
	}
	return rowToStack(&row)
}

func updateStack(ctx context.Context, exec executor, st *domain.Stack) error {
	variablesJSON, err := json.Marshal(st.Variables)
	if err != nil {
		return NewStoreError("UpdateStack", "stack", st.ID, "failed to serialize variables", ErrInvalidData)
	}

	query := `
		UPDATE stacks SET
			compose_path = :compose_path,
			variables = :variables,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id AND tenant_id = :tenant_id`

	result, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":           st.ID,
		"tenant_id":    st.TenantID,
		"compose_path": st.ComposePath,
		"variables":    string(variablesJSON),
		"status":       string(st.Status),
		"updated_at":   st.UpdatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return NewStoreError("UpdateStack", "stack", st.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateStack", "stack", st.ID, "stack not found", ErrNotFound)
	}

	return nil
}

func deleteStack(ctx context.Context, exec executor, tenantID, id string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM stacks WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return NewStoreError("DeleteStack", "stack", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteStack", "stack", id, "stack not found", ErrNotFound)
	}

	return nil
}

func listStacks(ctx context.Context, exec executor, tenantID string, opts ListOptions) ([]domain.Stack, error) {
	opts = opts.Normalize()

	var rows []stackRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM stacks WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		tenantID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListStacks", "stack", "", err.Error(), err)
	}

	stacks := make([]domain.Stack, 0, len(rows))
	for i := range rows {
		st, err := rowToStack(&rows[i])
		if err != nil {
			return nil, err
		}
		stacks = append(stacks, *st)
	}

	return stacks, nil
}

func slugInUse(ctx context.Context, exec executor, tenantID, slug string) (bool, error) {
	var count int
	err := exec.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM stacks WHERE tenant_id = ? AND slug = ?`, tenantID, slug)
	if err != nil {
		return false, NewStoreError("SlugInUse", "stack", slug, err.Error(), err)
	}
	return count > 0, nil
}

func rowToStack(row *stackRow) (*domain.Stack, error) {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, row.UpdatedAt)

	var variables map[string]string
	if row.Variables != nil && *row.Variables != "" && *row.Variables != "null" {
		if err := json.Unmarshal([]byte(*row.Variables), &variables); err != nil {
			return nil, NewStoreError("rowToStack", "stack", row.ID, "failed to parse variables", ErrInvalidData)
		}
	}

	return &domain.Stack{
		ID:          row.ID,
		TenantID:    row.TenantID,
		TemplateID:  row.TemplateID,
		Name:        row.Name,
		Slug:        row.Slug,
		ComposePath: row.ComposePath,
		Variables:   variables,
		Status:      domain.StackStatus(row.Status),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// =============================================================================
// Audit Event Implementation
// =============================================================================

func createAuditEvent(ctx context.Context, exec executor, ev *domain.AuditEvent) error {
	query := `
		INSERT INTO audit_events (id, tenant_id, action, entity_id, detail, created_at)
		VALUES (:id, :tenant_id, :action, :entity_id, :detail, :created_at)`

	_, err := exec.NamedExecContext(ctx, query, map[string]any{
		"id":         ev.ID,
		"tenant_id":  ev.TenantID,
		"action":     string(ev.Action),
		"entity_id":  ev.EntityID,
		"detail":     ev.Detail,
		"created_at": ev.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return NewStoreError("CreateAuditEvent", "audit_event", ev.ID, err.Error(), err)
	}
	return nil
}

func listAuditEvents(ctx context.Context, exec executor, tenantID string, limit int) ([]domain.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []auditEventRow
	err := exec.SelectContext(ctx, &rows,
		`SELECT * FROM audit_events WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`,
		tenantID, limit)
	if err != nil {
		return nil, NewStoreError("ListAuditEvents", "audit_event", "", err.Error(), err)
	}

	events := make([]domain.AuditEvent, 0, len(rows))
	for _, row := range rows {
		createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)
		events = append(events, domain.AuditEvent{
			ID:        row.ID,
			TenantID:  row.TenantID,
			Action:    domain.AuditAction(row.Action),
			EntityID:  row.EntityID,
			Detail:    row.Detail,
			CreatedAt: createdAt,
		})
	}

	return events, nil
}
