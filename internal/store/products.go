package store

import (
	"database/sql"
	"fmt"
	"strings"
)

const productColumns = "id, name, description, price, marginal_price, code, link, created_at"

func scanProduct(row interface{ Scan(...any) error }, p *Product) error {
	return row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.MarginalPrice, &p.Code, &p.Link, &p.CreatedAt)
}

func (s *SQLiteStore) CreateProduct(p *Product) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin product insert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO products (name, description, price, marginal_price, code, link) VALUES (?, ?, ?, ?, ?, ?)",
		p.Name, p.Description, p.Price.String(), p.MarginalPrice.String(), p.Code, p.Link)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	p.ID, _ = res.LastInsertId()

	if err := insertImages(tx, p.ID, p.Images); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product insert: %w", err)
	}

	created, err := s.GetProduct(p.ID)
	if err != nil {
		return err
	}
	*p = *created
	return nil
}

func (s *SQLiteStore) GetProduct(id int64) (*Product, error) {
	var p Product
	err := scanProduct(s.db.QueryRow("SELECT "+productColumns+" FROM products WHERE id = ?", id), &p)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	products := []Product{p}
	if err := s.attachImages(products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// ListProducts returns products ordered by id, narrowed by filter.
func (s *SQLiteStore) ListProducts(filter ProductFilter) ([]Product, error) {
	var where []string
	var args []any
	if filter.Name != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.Name+"%")
	}
	if filter.Code != "" {
		where = append(where, "code = ?")
		args = append(args, filter.Code)
	}
	if filter.MinPrice != nil {
		where = append(where, "CAST(price AS REAL) >= ?")
		args = append(args, filter.MinPrice.InexactFloat64())
	}
	if filter.MaxPrice != nil {
		where = append(where, "CAST(price AS REAL) <= ?")
		args = append(args, filter.MaxPrice.InexactFloat64())
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	if err := s.attachImages(products); err != nil {
		return nil, err
	}
	return products, nil
}

// UpdateProduct overwrites every field of the product, images included.
func (s *SQLiteStore) UpdateProduct(p *Product) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin product update: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE products SET name = ?, description = ?, price = ?, marginal_price = ?, code = ?, link = ? WHERE id = ?",
		p.Name, p.Description, p.Price.String(), p.MarginalPrice.String(), p.Code, p.Link, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("product %d: %w", p.ID, ErrNotFound)
	}

	if _, err := tx.Exec("DELETE FROM product_images WHERE product_id = ?", p.ID); err != nil {
		return fmt.Errorf("failed to clear product images: %w", err)
	}
	if err := insertImages(tx, p.ID, p.Images); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product update: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteProduct(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin product delete: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"index_vectors", "product_images"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE product_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete %s of product: %w", table, err)
		}
	}
	res, err := tx.Exec("DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product delete: %w", err)
	}
	return nil
}

func insertImages(tx *sql.Tx, productID int64, images []string) error {
	for _, path := range images {
		if _, err := tx.Exec("INSERT INTO product_images (product_id, path) VALUES (?, ?)", productID, path); err != nil {
			return fmt.Errorf("failed to insert product image: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) attachImages(products []Product) error {
	if len(products) == 0 {
		return nil
	}
	byID := make(map[int64]int, len(products))
	for i := range products {
		byID[products[i].ID] = i
		products[i].Images = []string{}
	}

	rows, err := s.db.Query("SELECT product_id, path FROM product_images ORDER BY id ASC")
	if err != nil {
		return fmt.Errorf("failed to query product images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var path string
		if err := rows.Scan(&productID, &path); err != nil {
			return fmt.Errorf("failed to scan product image row: %w", err)
		}
		if i, ok := byID[productID]; ok {
			products[i].Images = append(products[i].Images, path)
		}
	}
	return rows.Err()
}
