// Package store is the sqlite persistence layer for the curator. One
// row per live FIS-B message keyed by (type, unique_name), plus image
// legend rows and the reception success rate history.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

// sqlTimeLayout is fixed width so lexicographic comparison of stored
// timestamps matches chronological order.
const sqlTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}

// Key identifies one stored message.
type Key struct {
	Type       string
	UniqueName string
}

func (k Key) String() string {
	return k.Type + "/" + k.UniqueName
}

type Store struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the curator database and brings its
// schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY between the ingest and maintenance paths.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Upsert stores a product, replacing any previous message with the
// same (type, unique_name). It reports whether the stored content
// changed: a retransmission with an unchanged digest only refreshes
// the expiration time.
func (s *Store) Upsert(p *fisb.Product) (changed bool, err error) {
	digest := ""
	if !p.NoDigest {
		digest = p.Digest()
	}

	if digest != "" {
		var existing string
		err := s.QueryRow(
			`SELECT digest FROM messages WHERE type = ? AND unique_name = ?`,
			p.Type, p.UniqueName,
		).Scan(&existing)
		switch {
		case err == nil && existing == digest:
			_, err = s.Exec(
				`UPDATE messages SET expiration_time = ? WHERE type = ? AND unique_name = ?`,
				formatTime(p.ExpirationTime), p.Type, p.UniqueName,
			)
			return false, err
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return false, err
		}
	}

	now := time.Now().UTC()
	p.InsertTime = &now
	body, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("marshal %s/%s: %w", p.Type, p.UniqueName, err)
	}

	_, err = s.Exec(`
		INSERT INTO messages (type, unique_name, product_id, digest, expiration_time, insert_time, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (type, unique_name) DO UPDATE SET
			product_id = excluded.product_id,
			digest = excluded.digest,
			expiration_time = excluded.expiration_time,
			insert_time = excluded.insert_time,
			body = excluded.body`,
		p.Type, p.UniqueName, p.ProductID, digest,
		formatTime(p.ExpirationTime), formatTime(now), string(body),
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the stored message, or nil when absent.
func (s *Store) Get(msgType, uniqueName string) (*fisb.Product, error) {
	var body string
	err := s.QueryRow(
		`SELECT body FROM messages WHERE type = ? AND unique_name = ?`,
		msgType, uniqueName,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p fisb.Product
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("unmarshal %s/%s: %w", msgType, uniqueName, err)
	}
	return &p, nil
}

// Delete removes a stored message, reporting whether it existed.
func (s *Store) Delete(msgType, uniqueName string) (bool, error) {
	res, err := s.Exec(
		`DELETE FROM messages WHERE type = ? AND unique_name = ?`,
		msgType, uniqueName,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteExpired removes every message whose expiration is at or before
// now and returns the removed keys.
func (s *Store) DeleteExpired(now time.Time) ([]Key, error) {
	cutoff := formatTime(now)
	rows, err := s.Query(
		`SELECT type, unique_name FROM messages WHERE expiration_time <= ?`, cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k Key
		if err := rows.Scan(&k.Type, &k.UniqueName); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	if _, err := s.Exec(`DELETE FROM messages WHERE expiration_time <= ?`, cutoff); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) scanProducts(rows *sql.Rows) ([]*fisb.Product, error) {
	defer rows.Close()
	var out []*fisb.Product
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var p fisb.Product
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// ListByType returns all messages of one type ordered by unique name.
func (s *Store) ListByType(msgType string) ([]*fisb.Product, error) {
	rows, err := s.Query(
		`SELECT body FROM messages WHERE type = ? ORDER BY unique_name`, msgType,
	)
	if err != nil {
		return nil, err
	}
	return s.scanProducts(rows)
}

// ListByTypePrefix returns all messages whose type starts with prefix,
// ordered by type then unique name.
func (s *Store) ListByTypePrefix(prefix string) ([]*fisb.Product, error) {
	rows, err := s.Query(
		`SELECT body FROM messages WHERE type >= ? AND type < ? ORDER BY type, unique_name`,
		prefix, prefix+"\xff",
	)
	if err != nil {
		return nil, err
	}
	return s.scanProducts(rows)
}

// ListByProductID returns all messages carrying one FIS-B product id.
func (s *Store) ListByProductID(productID int) ([]*fisb.Product, error) {
	rows, err := s.Query(
		`SELECT body FROM messages WHERE product_id = ? ORDER BY type, unique_name`, productID,
	)
	if err != nil {
		return nil, err
	}
	return s.scanProducts(rows)
}

// Types returns the distinct message types on hand.
func (s *Store) Types() ([]string, error) {
	rows, err := s.Query(`SELECT DISTINCT type FROM messages ORDER BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// HasReport reports whether the TWGO message a CRL entry names is on
// hand. A report id looks like "21-1234/TG" (text and graphics),
// "21-1234/TO" (text only), or "21-1234/GO" (graphics only); the
// stored message must carry every part the suffix names.
func (s *Store) HasReport(productID int, reportID string) (bool, error) {
	name, suffix, ok := strings.Cut(reportID, "/")
	if !ok {
		return false, fmt.Errorf("malformed CRL report id %q", reportID)
	}
	rows, err := s.Query(
		`SELECT body FROM messages WHERE product_id = ? AND unique_name = ?`,
		productID, name,
	)
	if err != nil {
		return false, err
	}
	products, err := s.scanProducts(rows)
	if err != nil {
		return false, err
	}
	for _, p := range products {
		hasText := p.Contents != ""
		hasGraphics := len(p.ContentsGraphics) > 0 || len(p.Geometry) > 0
		switch suffix {
		case "TG":
			if hasText && hasGraphics {
				return true, nil
			}
		case "GO":
			if hasGraphics {
				return true, nil
			}
		default:
			if hasText {
				return true, nil
			}
		}
	}
	return false, nil
}

// PutLegend stores the legend rows for one rendered image product.
func (s *Store) PutLegend(product string, legend any, now time.Time) error {
	body, err := json.Marshal(legend)
	if err != nil {
		return err
	}
	_, err = s.Exec(`
		INSERT INTO legends (product, body, updated_time) VALUES (?, ?, ?)
		ON CONFLICT (product) DO UPDATE SET
			body = excluded.body, updated_time = excluded.updated_time`,
		product, string(body), formatTime(now),
	)
	return err
}

// GetLegend loads the legend for one image product into out, reporting
// whether a legend exists.
func (s *Store) GetLegend(product string, out any) (bool, error) {
	var body string
	err := s.QueryRow(`SELECT body FROM legends WHERE product = ?`, product).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(body), out)
}

// RSRRow is one station's entry of a stored reception report.
type RSRRow struct {
	ReceivedTime time.Time
	Station      string
	Received     int
	Expected     int
	Percent      int
}

// RecordRSR appends one row per station of a reception report.
func (s *Store) RecordRSR(p *fisb.Product) error {
	for station, stat := range p.Stations {
		_, err := s.Exec(`
			INSERT INTO rsr_history (rcvd_time, station, received, expected, percent)
			VALUES (?, ?, ?, ?, ?)`,
			formatTime(p.ReceivedTime), station, stat.Received, stat.Expected, stat.Percent,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RSRHistory returns up to limit reception rows, oldest first. A limit
// of 0 returns everything.
func (s *Store) RSRHistory(limit int) ([]RSRRow, error) {
	q := `SELECT rcvd_time, station, received, expected, percent FROM rsr_history ORDER BY rcvd_time`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.Query(q+` LIMIT ?`, limit)
	} else {
		rows, err = s.Query(q)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RSRRow
	for rows.Next() {
		var r RSRRow
		var rcvd string
		if err := rows.Scan(&rcvd, &r.Station, &r.Received, &r.Expected, &r.Percent); err != nil {
			return nil, err
		}
		if r.ReceivedTime, err = time.Parse(sqlTimeLayout, rcvd); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
