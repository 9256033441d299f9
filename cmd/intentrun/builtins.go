package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"intentrun/internal/provider"
)

// registerBuiltins installs the stock capability providers.
func registerBuiltins(r *provider.Registry) error {
	files := &provider.Provider{
		Name:     "files",
		Priority: 10,
		Verbs:    []string{"list", "search", "read", "disk"},
		Aliases: map[string]string{
			"ls":   "list",
			"grep": "search",
			"cat":  "read",
		},
		Templates: map[string]provider.Template{
			"list": {
				Domain: provider.DomainHostCommand,
				Text:   "ls -la {path}",
			},
			"search": {
				Domain: provider.DomainHostCommand,
				Text:   "grep -rn {pattern} {path}",
			},
			"read": {
				Domain: provider.DomainHostCommand,
				Text:   "cat {path}",
			},
			"disk": {
				Domain: provider.DomainHostCommand,
				Text:   "du -sh {path}",
			},
		},
	}

	records := &provider.Provider{
		Name:     "records",
		Priority: 5,
		Verbs:    []string{"find-user", "count-users", "add-user", "remove-user"},
		Templates: map[string]provider.Template{
			"find-user": {
				Domain: provider.DomainStructuredQuery,
				Text:   "SELECT id, name FROM users WHERE name = {name}",
			},
			"count-users": {
				Domain: provider.DomainStructuredQuery,
				Text:   "SELECT COUNT(*) AS total FROM users",
			},
			"add-user": {
				Domain: provider.DomainStructuredQuery,
				Text:   "INSERT INTO users (name) VALUES ({name})",
			},
			"remove-user": {
				Domain: provider.DomainStructuredQuery,
				Text:   "DELETE FROM users WHERE name = {name}",
			},
		},
	}

	for _, p := range []*provider.Provider{files, records} {
		if err := r.Register(p); err != nil {
			return fmt.Errorf("register %s: %w", p.Name, err)
		}
	}
	return nil
}

// openQueryDB opens the database structured queries run against,
// creating the demo schema on first use.
func openQueryDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open query database: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize query schema: %w", err)
	}
	return db, nil
}
