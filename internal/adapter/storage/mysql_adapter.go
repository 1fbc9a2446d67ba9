package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrCheckConstraint = 3819
)

const (
	productColumns        = `id, nombre, categoria, precio, stock, marca, descripcion, imagen_url`
	productSummaryColumns = `id, nombre, categoria, precio, stock, marca`
	orderHeaderColumns    = `id, cliente_nombre, cliente_email, total, estado, fecha`
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, category string) ([]domain.ProductSummary, error) {
	query := `SELECT ` + productSummaryColumns + ` FROM products`
	var args []any
	if category != "" {
		query += ` WHERE categoria = ?`
		args = append(args, category)
	}
	query += ` ORDER BY nombre, id`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query products", err)
	}
	defer rows.Close()

	products := make([]domain.ProductSummary, 0)
	for rows.Next() {
		var p domain.ProductSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Brand); err != nil {
			return nil, classify("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate products", err)
	}

	return products, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("query product", err)
	}

	return &p, nil
}

func (m *MySQLAdapter) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT DISTINCT categoria FROM products ORDER BY categoria`)
	if err != nil {
		return nil, classify("query categories", err)
	}
	defer rows.Close()

	categories := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, classify("scan category", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate categories", err)
	}

	return categories, nil
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.NewProduct) (int64, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("begin tx", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM products WHERE LOWER(nombre) = LOWER(?) LIMIT 1`, p.Name,
	).Scan(&existing)
	switch {
	case err == nil:
		return 0, &domain.ConflictError{Field: "name", Value: p.Name}
	case !errors.Is(err, sql.ErrNoRows):
		return 0, classify("check product name", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO products (nombre, categoria, precio, stock, marca, descripcion, imagen_url)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Category, p.Price, p.Stock, p.Brand,
		nullString(p.Description), nullString(p.ImageURL),
	)
	if err != nil {
		// the unique index catches a concurrent registration of the same name
		if mysqlErrorNumber(err) == mysqlErrDuplicateEntry {
			return 0, &domain.ConflictError{Field: "name", Value: p.Name}
		}
		return 0, classify("insert product", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, classify("product id", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("commit product", err)
	}

	return id, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+orderHeaderColumns+` FROM orders WHERE id = ?`, id)

	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("query order", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.producto_id, p.nombre, oi.cantidad, oi.precio_unitario, oi.subtotal
		FROM order_items oi
		JOIN products p ON p.id = oi.producto_id
		WHERE oi.order_id = ?
		ORDER BY oi.id`, id,
	)
	if err != nil {
		return nil, classify("query order items", err)
	}
	defer rows.Close()

	order.Items = make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.ProductName,
			&item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, classify("scan order item", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate order items", err)
	}

	return &order, nil
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+orderHeaderColumns+` FROM orders ORDER BY fecha DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, classify("query orders", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, classify("scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate orders", err)
	}

	return orders, nil
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.OrderTx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlOrderTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("commit tx", err)
	}

	return nil
}

type mysqlOrderTx struct {
	tx *sql.Tx
}

func (t *mysqlOrderTx) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	products := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	// rows are locked in ascending id order so overlapping carts cannot deadlock
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	args := make([]any, len(sorted))
	for i, id := range sorted {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(sorted)), ", ")

	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id IN (`+placeholders+`) ORDER BY id FOR UPDATE`,
		args...,
	)
	if err != nil {
		return nil, classify("lock products", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, classify("scan locked product", err)
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate locked products", err)
	}

	return products, nil
}

func (t *mysqlOrderTx) InsertOrder(ctx context.Context, order *domain.Order) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (cliente_nombre, cliente_email, total, estado, fecha)
		VALUES (?, ?, ?, ?, ?)`,
		order.CustomerName, order.CustomerEmail, order.Total, string(order.Status), order.CreatedAt,
	)
	if err != nil {
		return 0, classify("insert order", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, classify("order id", err)
	}

	return id, nil
}

func (t *mysqlOrderTx) InsertOrderItem(ctx context.Context, item domain.OrderItem) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_items (order_id, producto_id, cantidad, precio_unitario, subtotal)
		VALUES (?, ?, ?, ?, ?)`,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal,
	)
	if err != nil {
		return classify("insert order item", err)
	}
	return nil
}

func (t *mysqlOrderTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?
		WHERE id = ? AND stock >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		if mysqlErrorNumber(err) == mysqlErrCheckConstraint {
			return t.insufficientStock(ctx, productID, quantity)
		}
		return classify("update stock", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return classify("update stock", err)
	}
	if rows == 0 {
		return t.insufficientStock(ctx, productID, quantity)
	}

	return nil
}

func (t *mysqlOrderTx) insufficientStock(ctx context.Context, productID int64, requested int) error {
	var available int
	err := t.tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, productID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Entity: "product", ID: productID}
	}
	if err != nil {
		return classify("read stock", err)
	}

	return &domain.InsufficientStockError{
		ProductID: productID,
		Available: available,
		Requested: requested,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (domain.Product, error) {
	var (
		p           domain.Product
		description sql.NullString
		imageURL    sql.NullString
	)
	err := s.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Brand, &description, &imageURL)
	if err != nil {
		return domain.Product{}, err
	}
	p.Description = stringPtr(description)
	p.ImageURL = stringPtr(imageURL)
	return p, nil
}

func scanOrder(s scanner) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	if err := s.Scan(&o.ID, &o.CustomerName, &o.CustomerEmail, &o.Total, &status, &o.CreatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func mysqlErrorNumber(err error) uint16 {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number
	}
	return 0
}

// classify wraps a store error, tagging lock conflicts and connection or
// timeout failures so callers can tell them apart from permanent errors.
func classify(op string, err error) error {
	switch mysqlErrorNumber(err) {
	case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
		return fmt.Errorf("%s: %w: %w", op, port.ErrTxConflict, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransientStore, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
