package database

import (
	"database/sql"
	"errors"
)

// ErrReportNotFound is returned when no row matches the requested id
var ErrReportNotFound = errors.New("report not found")

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	// CreateReport assigns id and creation time when they are empty and inserts the row.
	CreateReport(report *Report) (string, error)
	SetLedgerTx(id string, txHash string) error
	// GetReports returns all reports, newest first.
	GetReports() ([]*Report, error)
	GetReportByID(id string) (*Report, error)
	DeleteReport(id string) error
}
