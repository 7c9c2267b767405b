package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const createReportsTable = `CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		image_path TEXT NOT NULL,
		detections INTEGER NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		created_at BIGINT NOT NULL
	)`

const reportColumns = "id, address, latitude, longitude, image_path, detections, tx_hash, created_at"

// sqlDatabase implements DatabaseService on top of database/sql.
// Queries are written with '?' placeholders and rebound per driver.
type sqlDatabase struct {
	db               *sql.DB
	connectionString string
	numbered         bool
	now              func() time.Time
}

func newSQLDatabase(driver, connectionString string, numberedPlaceholders bool) (*sqlDatabase, error) {
	db, err := sql.Open(driver, connectionString)
	if err != nil {
		return nil, err
	}
	return &sqlDatabase{
		db:               db,
		connectionString: connectionString,
		numbered:         numberedPlaceholders,
		now:              time.Now,
	}, nil
}

// rebind turns '?' placeholders into $1, $2, ... for drivers that need it
func (s *sqlDatabase) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlDatabase) CreateDatabase() (*sql.DB, error) {
	if _, err := s.db.Exec(createReportsTable); err != nil {
		return nil, err
	}
	return s.db, nil
}

func (s *sqlDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *sqlDatabase) DoesDatabaseExist() bool {
	return s.db.Ping() == nil
}

func (s *sqlDatabase) CreateReport(report *Report) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report must not be nil")
	}
	if report.ID == "" {
		id, err := generateID()
		if err != nil {
			return "", err
		}
		report.ID = id
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = s.now()
	}

	_, err := s.db.Exec(s.rebind("INSERT INTO reports ("+reportColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		report.ID, report.Address, report.Latitude, report.Longitude,
		report.ImagePath, report.Detections, report.TxHash, report.CreatedAt.UnixMilli())
	if err != nil {
		return "", err
	}
	return report.ID, nil
}

func (s *sqlDatabase) SetLedgerTx(id string, txHash string) error {
	res, err := s.db.Exec(s.rebind("UPDATE reports SET tx_hash = ? WHERE id = ?"), txHash, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *sqlDatabase) GetReports() ([]*Report, error) {
	rows, err := s.db.Query("SELECT " + reportColumns + " FROM reports ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	reports := []*Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func (s *sqlDatabase) GetReportByID(id string) (*Report, error) {
	row := s.db.QueryRow(s.rebind("SELECT "+reportColumns+" FROM reports WHERE id = ?"), id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	return report, err
}

func (s *sqlDatabase) DeleteReport(id string) error {
	res, err := s.db.Exec(s.rebind("DELETE FROM reports WHERE id = ?"), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var report Report
	var createdAt int64
	if err := row.Scan(&report.ID, &report.Address, &report.Latitude, &report.Longitude,
		&report.ImagePath, &report.Detections, &report.TxHash, &createdAt); err != nil {
		return nil, err
	}
	report.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &report, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrReportNotFound
	}
	return nil
}
