package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/movebox/customerdupes/internal/models"
)

const customerColumns = `id, name, email, phone, from_address, to_address, moving_date,
	notes, tags, created_at, updated_at`

// ListCustomers returns every live customer, oldest first.
func (db *DB) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE is_deleted = 0
		ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCustomers(rows)
}

func (db *DB) GetCustomer(ctx context.Context, id string) (models.Customer, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers WHERE id = ? AND is_deleted = 0`, id)
	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	return c, err
}

// CreateCustomer inserts c, assigning a new id when c.ID is empty.
func (db *DB) CreateCustomer(ctx context.Context, c *models.Customer) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	tags, err := encodeTags(c.Tags)
	if err != nil {
		return err
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, from_address, to_address, moving_date, notes, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Email, c.Phone, c.FromAddress, c.ToAddress, c.MovingDate, c.Notes, tags)
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}

	created, err := db.GetCustomer(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = created
	return nil
}

// UpdateCustomer applies the non-nil fields of patch. Unknown or deleted
// ids return ErrNotFound.
func (db *DB) UpdateCustomer(ctx context.Context, id string, patch models.CustomerPatch) error {
	if patch.IsEmpty() {
		// Nothing to change, but the id must still exist.
		_, err := db.GetCustomer(ctx, id)
		return err
	}

	var sets []string
	var args []any
	set := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	set("name", patch.Name)
	set("email", patch.Email)
	set("phone", patch.Phone)
	set("from_address", patch.FromAddress)
	set("to_address", patch.ToAddress)
	set("moving_date", patch.MovingDate)
	set("notes", patch.Notes)
	if patch.Tags != nil {
		tags, err := encodeTags(*patch.Tags)
		if err != nil {
			return err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}

	sets = append(sets, "updated_at = datetime('now')")
	args = append(args, id)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE customers SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_deleted = 0`,
		args...)
	if err != nil {
		return fmt.Errorf("update customer %s: %w", id, err)
	}
	return requireAffected(result, id)
}

// DeleteCustomer soft-deletes a customer. Deleting an unknown or already
// deleted id returns ErrNotFound.
func (db *DB) DeleteCustomer(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE customers SET is_deleted = 1, updated_at = datetime('now') WHERE id = ? AND is_deleted = 0`, id)
	if err != nil {
		return fmt.Errorf("delete customer %s: %w", id, err)
	}
	return requireAffected(result, id)
}

func (db *DB) CustomerCount(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers WHERE is_deleted = 0`).Scan(&n)
	return n, err
}

func requireAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	return nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row rowScanner) (models.Customer, error) {
	var c models.Customer
	var tags, createdAt, updatedAt string
	if err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.FromAddress, &c.ToAddress, &c.MovingDate,
		&c.Notes, &tags, &createdAt, &updatedAt,
	); err != nil {
		return c, err
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
			return c, fmt.Errorf("decode tags of %s: %w", c.ID, err)
		}
	}
	if len(c.Tags) == 0 {
		c.Tags = nil
	}
	c.CreatedAt, _ = parseTime(createdAt)
	c.UpdatedAt, _ = parseTime(updatedAt)
	return c, nil
}

func scanCustomers(rows *sql.Rows) ([]models.Customer, error) {
	customers := make([]models.Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}
