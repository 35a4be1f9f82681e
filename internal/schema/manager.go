package schema

import (
	"context"
	"log/slog"

	"dwh/internal/ddl"
	"dwh/internal/dwherr"
	"dwh/internal/storage"
)

// Manager creates and drops the warehouse tables.
type Manager struct {
	wh     storage.Warehouse
	tables []ddl.TableDef
	logger *slog.Logger
}

// NewManager returns a Manager over every declared table.
func NewManager(wh storage.Warehouse, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{wh: wh, tables: Tables(), logger: logger}
}

// Create issues "create if absent" for every table in dependency order.
func (m *Manager) Create(ctx context.Context) error {
	order, err := CreateOrder(m.tables)
	if err != nil {
		return dwherr.Schema("", "", err)
	}
	d := m.wh.Dialect()
	for _, t := range order {
		stmts, err := d.CreateTable(t)
		if err != nil {
			return dwherr.Schema(t.Name, "", err)
		}
		if err := m.execAll(ctx, t.Name, stmts); err != nil {
			return err
		}
		m.logger.Debug("table created", "table", t.Name)
	}
	m.logger.Info("schema created", "tables", len(order), "dialect", d.Name())
	return nil
}

// Drop issues "drop if present" for every table in reverse dependency order.
func (m *Manager) Drop(ctx context.Context) error {
	order, err := DropOrder(m.tables)
	if err != nil {
		return dwherr.Schema("", "", err)
	}
	d := m.wh.Dialect()
	for _, t := range order {
		if err := m.execAll(ctx, t.Name, d.DropTable(t)); err != nil {
			return err
		}
		m.logger.Debug("table dropped", "table", t.Name)
	}
	m.logger.Info("schema dropped", "tables", len(order))
	return nil
}

// Reset drops then creates every table.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.Drop(ctx); err != nil {
		return err
	}
	return m.Create(ctx)
}

func (m *Manager) execAll(ctx context.Context, table string, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := m.wh.Exec(ctx, stmt); err != nil {
			return dwherr.Schema(table, stmt, err)
		}
	}
	return nil
}
