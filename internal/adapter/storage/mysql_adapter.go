package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-sql-driver/mysql"

	"github.com/mfalan/stock-ledger/internal/core/domain"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrRowIsReferenced = 1451
)

// MySQLAdapter implements the ItemStore, Ledger and CompositeRegistry ports
// on one MySQL database.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Migrate creates the schema. movements.seq is the append order of the
// ledger; id stays the stable external identifier.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS item_groups (
			id          BIGINT AUTO_INCREMENT PRIMARY KEY,
			name        VARCHAR(100) NOT NULL UNIQUE,
			description TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			id          BIGINT AUTO_INCREMENT PRIMARY KEY,
			code        VARCHAR(50) NOT NULL UNIQUE,
			name        VARCHAR(100) NOT NULL,
			size        VARCHAR(50) NOT NULL DEFAULT '',
			description TEXT,
			group_id    BIGINT NULL,
			quantity    INT NOT NULL DEFAULT 0,
			threshold   INT NULL,
			version     INT NOT NULL DEFAULT 0,
			created_at  DATETIME(6) NOT NULL,
			FOREIGN KEY (group_id) REFERENCES item_groups(id)
		)`,
		`CREATE TABLE IF NOT EXISTS composite_items (
			id          BIGINT AUTO_INCREMENT PRIMARY KEY,
			sku         VARCHAR(50) NOT NULL UNIQUE,
			name        VARCHAR(100) NOT NULL,
			description TEXT,
			created_at  DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS composite_components (
			composite_id     BIGINT NOT NULL,
			item_id          BIGINT NOT NULL,
			quantity_per_kit INT NOT NULL,
			position         INT NOT NULL,
			PRIMARY KEY (composite_id, item_id),
			FOREIGN KEY (composite_id) REFERENCES composite_items(id),
			FOREIGN KEY (item_id) REFERENCES items(id)
		)`,
		`CREATE TABLE IF NOT EXISTS movements (
			seq             BIGINT AUTO_INCREMENT PRIMARY KEY,
			id              CHAR(36) NOT NULL UNIQUE,
			item_id         BIGINT NOT NULL,
			type            VARCHAR(10) NOT NULL,
			quantity        INT NOT NULL,
			before_quantity INT NOT NULL,
			after_quantity  INT NOT NULL,
			reason          VARCHAR(255) NOT NULL DEFAULT '',
			reference_no    VARCHAR(100) NOT NULL DEFAULT '',
			note            TEXT,
			created_at      DATETIME(6) NOT NULL,
			INDEX idx_movements_item (item_id, seq),
			FOREIGN KEY (item_id) REFERENCES items(id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ApplyMovements commits the batch in one transaction. Rows are locked in
// ascending item-id order so two overlapping batches cannot deadlock.
func (m *MySQLAdapter) ApplyMovements(ctx context.Context, movements []*domain.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	sorted := make([]*domain.Movement, len(movements))
	copy(sorted, movements)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, mv := range sorted {
		var quantity int
		err := tx.QueryRowContext(ctx,
			`SELECT quantity FROM items WHERE id = ? FOR UPDATE`, mv.ItemID,
		).Scan(&quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.NotFoundError{Entity: "item", ID: mv.ItemID}
		}
		if err != nil {
			return fmt.Errorf("lock item %d: %w", mv.ItemID, err)
		}
		if quantity != mv.BeforeQuantity {
			return domain.ErrConflict
		}

		var ledgerQuantity int
		err = tx.QueryRowContext(ctx,
			`SELECT after_quantity FROM movements WHERE item_id = ? ORDER BY seq DESC LIMIT 1`, mv.ItemID,
		).Scan(&ledgerQuantity)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read ledger for item %d: %w", mv.ItemID, err)
		}
		if err == nil && ledgerQuantity != quantity {
			return &domain.ConsistencyError{ItemID: mv.ItemID, ItemQuantity: quantity, LedgerQuantity: ledgerQuantity}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE items SET quantity = ?, version = version + 1 WHERE id = ?`,
			mv.AfterQuantity, mv.ItemID,
		); err != nil {
			return fmt.Errorf("update item %d: %w", mv.ItemID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO movements (id, item_id, type, quantity, before_quantity, after_quantity, reason, reference_no, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			mv.ID, mv.ItemID, mv.Type, mv.Quantity, mv.BeforeQuantity, mv.AfterQuantity,
			mv.Reason, mv.ReferenceNo, mv.Note, mv.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert movement for item %d: %w", mv.ItemID, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetItem(ctx context.Context, itemID int64) (*domain.InventoryItem, error) {
	item, err := scanItem(m.db.QueryRowContext(ctx, `
		SELECT id, code, name, size, description, group_id, quantity, threshold, version, created_at
		FROM items WHERE id = ?`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item %d: %w", itemID, err)
	}
	return item, nil
}

func (m *MySQLAdapter) ListItems(ctx context.Context) ([]domain.InventoryItem, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, code, name, size, description, group_id, quantity, threshold, version, created_at
		FROM items ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) CreateItem(ctx context.Context, item *domain.InventoryItem) error {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO items (code, name, size, description, group_id, quantity, threshold, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		item.Code, item.Name, item.Size, item.Description,
		item.GroupID, item.Quantity, item.Threshold, item.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return domain.Validationf("item code %q already exists", item.Code)
	}
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	item.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteItem(ctx context.Context, itemID int64) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var referenced bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM composite_components WHERE item_id = ?)
		    OR EXISTS(SELECT 1 FROM movements WHERE item_id = ?)`,
		itemID, itemID,
	).Scan(&referenced)
	if err != nil {
		return fmt.Errorf("check references for item %d: %w", itemID, err)
	}
	if referenced {
		return domain.ErrItemInUse
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, itemID)
	if isReferencedRow(err) {
		// a movement or BOM line committed between the check and the delete
		return domain.ErrItemInUse
	}
	if err != nil {
		return fmt.Errorf("delete item %d: %w", itemID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return &domain.NotFoundError{Entity: "item", ID: itemID}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) CreateGroup(ctx context.Context, group *domain.ItemGroup) error {
	result, err := m.db.ExecContext(ctx,
		`INSERT INTO item_groups (name, description) VALUES (?, ?)`,
		group.Name, group.Description,
	)
	if isDuplicateEntry(err) {
		return domain.Validationf("group name %q already exists", group.Name)
	}
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	group.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetGroup(ctx context.Context, groupID int64) (*domain.ItemGroup, error) {
	var group domain.ItemGroup
	err := m.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM item_groups WHERE id = ?`, groupID,
	).Scan(&group.ID, &group.Name, &group.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query group %d: %w", groupID, err)
	}
	return &group, nil
}

func (m *MySQLAdapter) ListGroups(ctx context.Context) ([]domain.ItemGroup, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id, name, description FROM item_groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.ItemGroup
	for rows.Next() {
		var group domain.ItemGroup
		if err := rows.Scan(&group.ID, &group.Name, &group.Description); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (m *MySQLAdapter) LatestMovement(ctx context.Context, itemID int64) (*domain.Movement, error) {
	mv, err := scanMovement(m.db.QueryRowContext(ctx, `
		SELECT id, item_id, type, quantity, before_quantity, after_quantity, reason, reference_no, note, created_at
		FROM movements WHERE item_id = ? ORDER BY seq DESC LIMIT 1`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest movement for item %d: %w", itemID, err)
	}
	return mv, nil
}

func (m *MySQLAdapter) ListMovements(ctx context.Context, itemID int64, limit int) ([]domain.Movement, error) {
	query := `
		SELECT id, item_id, type, quantity, before_quantity, after_quantity, reason, reference_no, note, created_at
		FROM movements`
	args := []any{}
	if itemID != 0 {
		query += ` WHERE item_id = ?`
		args = append(args, itemID)
	}
	query += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	var movements []domain.Movement
	for rows.Next() {
		mv, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, *mv)
	}
	return movements, rows.Err()
}

func (m *MySQLAdapter) GetComposite(ctx context.Context, compositeID int64) (*domain.CompositeItem, error) {
	var composite domain.CompositeItem
	err := m.db.QueryRowContext(ctx,
		`SELECT id, sku, name, description, created_at FROM composite_items WHERE id = ?`, compositeID,
	).Scan(&composite.ID, &composite.SKU, &composite.Name, &composite.Description, &composite.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query composite %d: %w", compositeID, err)
	}
	return &composite, nil
}

func (m *MySQLAdapter) ListComposites(ctx context.Context) ([]domain.CompositeItem, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, sku, name, description, created_at FROM composite_items ORDER BY sku`)
	if err != nil {
		return nil, fmt.Errorf("query composites: %w", err)
	}
	defer rows.Close()

	var composites []domain.CompositeItem
	for rows.Next() {
		var composite domain.CompositeItem
		if err := rows.Scan(&composite.ID, &composite.SKU, &composite.Name, &composite.Description, &composite.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan composite: %w", err)
		}
		composites = append(composites, composite)
	}
	return composites, rows.Err()
}

func (m *MySQLAdapter) GetBOM(ctx context.Context, compositeID int64) ([]domain.CompositeComponent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT item_id, quantity_per_kit FROM composite_components
		WHERE composite_id = ? ORDER BY position`, compositeID)
	if err != nil {
		return nil, fmt.Errorf("query BOM for composite %d: %w", compositeID, err)
	}
	defer rows.Close()

	var components []domain.CompositeComponent
	for rows.Next() {
		var line domain.CompositeComponent
		if err := rows.Scan(&line.ComponentItemID, &line.QuantityPerKit); err != nil {
			return nil, fmt.Errorf("scan BOM line: %w", err)
		}
		components = append(components, line)
	}
	return components, rows.Err()
}

func (m *MySQLAdapter) CreateComposite(ctx context.Context, composite *domain.CompositeItem, components []domain.CompositeComponent) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO composite_items (sku, name, description, created_at) VALUES (?, ?, ?, ?)`,
		composite.SKU, composite.Name, composite.Description, composite.CreatedAt,
	)
	if isDuplicateEntry(err) {
		return domain.Validationf("composite sku %q already exists", composite.SKU)
	}
	if err != nil {
		return fmt.Errorf("insert composite: %w", err)
	}
	composite.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert composite: %w", err)
	}

	for position, line := range components {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO composite_components (composite_id, item_id, quantity_per_kit, position)
			VALUES (?, ?, ?, ?)`,
			composite.ID, line.ComponentItemID, line.QuantityPerKit, position,
		); err != nil {
			return fmt.Errorf("insert BOM line for item %d: %w", line.ComponentItemID, err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	var groupID sql.NullInt64
	var threshold sql.NullInt64
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Size, &item.Description,
		&groupID, &item.Quantity, &threshold, &item.Version, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	if groupID.Valid {
		item.GroupID = &groupID.Int64
	}
	if threshold.Valid {
		t := int(threshold.Int64)
		item.Threshold = &t
	}
	return &item, nil
}

func scanMovement(row rowScanner) (*domain.Movement, error) {
	var mv domain.Movement
	err := row.Scan(&mv.ID, &mv.ItemID, &mv.Type, &mv.Quantity, &mv.BeforeQuantity,
		&mv.AfterQuantity, &mv.Reason, &mv.ReferenceNo, &mv.Note, &mv.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &mv, nil
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry
}

func isReferencedRow(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrRowIsReferenced
}
