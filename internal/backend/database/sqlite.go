package database

import (
	_ "modernc.org/sqlite"
)

// NewSQLiteDatabase opens a SQLite database. ":memory:" keeps everything in process.
func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := newSQLDatabase("sqlite", connectionString, false)
	if err != nil {
		return nil, err
	}
	if connectionString == ":memory:" {
		// every new connection would get its own empty in-memory database
		db.db.SetMaxOpenConns(1)
	}
	return db, nil
}
