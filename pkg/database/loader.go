package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"retail-segments/pkg/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect est le nom du driver database/sql utilisé.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

func (d Dialect) placeholders() sq.PlaceholderFormat {
	if d == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

var tableNameExpr = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Open DSN mariadb://, mysql://, postgres:// ou sqlite:// → driver adapté
func Open(dsn string) (*sql.DB, Dialect, error) {
	dialect, native, err := resolveDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(string(dialect), native)
	if err != nil {
		return nil, "", err
	}
	if dialect == DialectSQLite {
		// un seul writer côté sqlite
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, dialect, nil
}

func resolveDSN(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("dsn vide")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("dsn sqlite sans chemin")
		}
		return DialectSQLite, path, nil
	case strings.HasPrefix(dsn, "file:"):
		return DialectSQLite, dsn, nil
	default:
		native, err := toMySQLDSN(dsn)
		if err != nil {
			return "", "", err
		}
		return DialectMySQL, native, nil
	}
}

const defaultMySQLPort = "3306"

// toMySQLDSN convertit mariadb://, mysql:// ou un DSN natif en DSN go-sql-driver,
// avec parseTime, loc=UTC et interpolateParams imposés. Les paramètres d'URL
// (charset, tls, ...) sont conservés.
func toMySQLDSN(dsn string) (string, error) {
	var cfg *mysql.Config
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		cfg = mysql.NewConfig()
		if u.User != nil {
			cfg.User = u.User.Username()
			cfg.Passwd, _ = u.User.Password()
		}
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		if cfg.User == "" || u.Host == "" || cfg.DBName == "" {
			return "", fmt.Errorf("dsn incomplet (user/host/db)")
		}
		cfg.Net = "tcp"
		cfg.Addr = u.Host
		if u.Port() == "" {
			cfg.Addr = net.JoinHostPort(u.Hostname(), defaultMySQLPort)
		}
		for key, values := range u.Query() {
			if len(values) == 0 {
				continue
			}
			if cfg.Params == nil {
				cfg.Params = map[string]string{}
			}
			cfg.Params[key] = values[len(values)-1]
		}
	} else {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		cfg = parsed
	}

	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.InterpolateParams = true
	return cfg.FormatDSN(), nil
}

// Redact masque le mot de passe d'un DSN URL pour les logs.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

var transactionColumns = []string{
	"invoice_no",
	"stock_code",
	"description",
	"category",
	"quantity",
	"invoice_date",
	"unit_price",
	"customer_id",
	"country",
}

// LoadTransactions charge les lignes de facture nettoyées correspondant au filtre.
// Les annulations (quantité ou prix ≤ 0) et les lignes sans client sont exclues ici,
// le moteur ne les revalide pas.
func LoadTransactions(ctx context.Context, db *sql.DB, dialect Dialect, tableName string, f models.Filter) ([]models.Transaction, error) {
	query, args, err := buildTransactionQuery(dialect, tableName, f)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}

	var out []models.Transaction
	for rows.Next() {
		var (
			t           models.Transaction
			description sql.NullString
			category    sql.NullString
			country     sql.NullString
		)
		if err := rows.Scan(
			&t.InvoiceNo,
			&t.StockCode,
			&description,
			&category,
			&t.Quantity,
			&t.InvoiceDate,
			&t.UnitPrice,
			&t.CustomerID,
			&country,
		); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Description = strings.TrimSpace(description.String)
		t.Category = category.String
		t.Country = country.String
		t.InvoiceDate = t.InvoiceDate.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close rows: %w", err)
	}
	return out, nil
}

func buildTransactionQuery(dialect Dialect, tableName string, f models.Filter) (string, []any, error) {
	if !tableNameExpr.MatchString(tableName) {
		return "", nil, fmt.Errorf("table invalide: %q", tableName)
	}

	// Bornes en UTC au format DATETIME, comme les colonnes sources
	const layout = "2006-01-02 15:04:05"

	q := sq.Select(transactionColumns...).
		From(tableName).
		Where(sq.Gt{"quantity": 0}).
		Where(sq.Gt{"unit_price": 0}).
		Where(sq.NotEq{"customer_id": nil}).
		Where(sq.NotEq{"customer_id": ""})
	if !f.Start.IsZero() {
		q = q.Where(sq.GtOrEq{"invoice_date": f.Start.UTC().Format(layout)})
	}
	if !f.End.IsZero() {
		q = q.Where(sq.Lt{"invoice_date": f.End.UTC().Format(layout)})
	}
	if len(f.Countries) > 0 {
		q = q.Where(sq.Eq{"country": f.Countries})
	}
	if len(f.Categories) > 0 {
		q = q.Where(sq.Eq{"category": f.Categories})
	}
	q = q.OrderBy("invoice_date", "invoice_no").PlaceholderFormat(dialect.placeholders())

	query, args, err := q.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	return query, args, nil
}
