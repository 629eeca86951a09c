// Package datasourcetest seeds an in-memory SQLite database shaped like the
// e-commerce store.
package datasourcetest

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE product_category_name_translation (
	product_category_name TEXT PRIMARY KEY,
	product_category_name_english TEXT
);
CREATE TABLE products (
	product_id TEXT PRIMARY KEY,
	product_category_name TEXT,
	product_weight_g INTEGER
);
CREATE TABLE customers (
	customer_id TEXT PRIMARY KEY,
	customer_unique_id TEXT,
	customer_city TEXT,
	customer_state TEXT
);
CREATE TABLE orders (
	order_id TEXT PRIMARY KEY,
	customer_id TEXT,
	order_status TEXT,
	order_purchase_timestamp TEXT,
	order_delivered_customer_date TEXT
);
CREATE TABLE order_items (
	order_id TEXT,
	order_item_id INTEGER,
	product_id TEXT,
	seller_id TEXT,
	price REAL,
	freight_value REAL
);`

const seed = `
INSERT INTO product_category_name_translation VALUES
	('moveis_decoracao', 'furniture_decor'),
	('beleza_saude', 'health_beauty'),
	('informatica_acessorios', 'computers_accessories'),
	('brinquedos', 'toys'),
	('esporte_lazer', 'sports_leisure'),
	('cama_mesa_banho', 'bed_bath_table');
INSERT INTO products VALUES
	('p1', 'moveis_decoracao', 1200),
	('p2', 'beleza_saude', 300),
	('p3', 'informatica_acessorios', 800),
	('p4', 'brinquedos', 450),
	('p5', 'esporte_lazer', 900),
	('p6', 'cama_mesa_banho', 700);
INSERT INTO customers VALUES
	('c1', 'u1', 'sao paulo', 'SP'),
	('c2', 'u2', 'rio de janeiro', 'RJ'),
	('c3', 'u3', 'belo horizonte', 'MG');
INSERT INTO orders VALUES
	('o1', 'c1', 'delivered', '2018-01-10 10:00:00', '2018-01-15 10:00:00'),
	('o2', 'c2', 'delivered', '2018-02-11 09:30:00', '2018-02-20 12:00:00'),
	('o3', 'c3', 'delivered', '2018-03-05 14:00:00', '2018-03-09 08:00:00'),
	('o4', 'c1', 'shipped',   '2018-04-22 16:45:00', NULL),
	('o5', 'c2', 'delivered', '2018-05-02 11:15:00', '2018-05-12 17:00:00');
INSERT INTO order_items VALUES
	('o1', 1, 'p1', 's1', 250.0, 20.0),
	('o1', 2, 'p2', 's2', 40.0, 8.0),
	('o2', 1, 'p1', 's1', 310.0, 25.0),
	('o2', 2, 'p3', 's3', 120.0, 10.0),
	('o3', 1, 'p4', 's2', 60.0, 9.0),
	('o3', 2, 'p5', 's3', 95.0, 12.0),
	('o4', 1, 'p3', 's3', 130.0, 11.0),
	('o4', 2, 'p6', 's1', 70.0, 7.0),
	('o5', 1, 'p2', 's2', 45.0, 6.0),
	('o5', 2, 'p1', 's1', 280.0, 22.0);`

// Open returns a seeded database that is closed when the test ends.
func Open(tb testing.TB) *sql.DB {
	tb.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	tb.Cleanup(func() { db.Close() })

	for _, stmt := range []string{schema, seed} {
		if _, err := db.Exec(stmt); err != nil {
			tb.Fatalf("seed sqlite: %v", err)
		}
	}
	return db
}
