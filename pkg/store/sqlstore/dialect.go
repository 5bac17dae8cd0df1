package sqlstore

import (
	"fmt"
	"strings"
)

// Dialect holds the driver specific SQL for one database engine.
type Dialect struct {
	// Driver is the database/sql driver name.
	Driver string

	schema      []string
	placeholder func(n int) string
}

// Postgres uses lib/pq.
var Postgres = Dialect{
	Driver: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			transaction_id VARCHAR(50) NOT NULL,
			amount NUMERIC(18,2) NOT NULL,
			currency_code CHAR(3) NOT NULL,
			transaction_date TIMESTAMP NOT NULL,
			status CHAR(1) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_currency_code ON transactions(currency_code)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_transaction_date ON transactions(transaction_date)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
	},
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

// SQLite uses mattn/go-sqlite3. Amounts are stored as text to keep them exact.
var SQLite = Dialect{
	Driver: "sqlite3",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			currency_code TEXT NOT NULL,
			transaction_date TIMESTAMP NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_currency_code ON transactions(currency_code)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_transaction_date ON transactions(transaction_date)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status)`,
	},
	placeholder: func(int) string { return "?" },
}

// DialectFor returns the dialect registered for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

const selectColumns = `SELECT id, transaction_id, amount, currency_code, transaction_date, status FROM transactions`

func (d Dialect) insertSQL() string {
	return fmt.Sprintf(
		`INSERT INTO transactions (transaction_id, amount, currency_code, transaction_date, status) VALUES (%s, %s, %s, %s, %s)`,
		d.placeholder(1), d.placeholder(2), d.placeholder(3), d.placeholder(4), d.placeholder(5),
	)
}

func (d Dialect) byCurrencySQL() string {
	return fmt.Sprintf(`%s WHERE currency_code = %s ORDER BY id`, selectColumns, d.placeholder(1))
}

func (d Dialect) byDateRangeSQL() string {
	return fmt.Sprintf(`%s WHERE transaction_date >= %s AND transaction_date <= %s ORDER BY id`,
		selectColumns, d.placeholder(1), d.placeholder(2))
}

func (d Dialect) byStatusSQL() string {
	return fmt.Sprintf(`%s WHERE status = %s ORDER BY id`, selectColumns, d.placeholder(1))
}
