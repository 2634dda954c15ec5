package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const authStatusKey = "antigravityAuthStatus"

// openReadOnly opens a SQLite file without taking write locks. Browsers
// hold their cookie databases in exclusive mode, so those are opened
// immutable.
func openReadOnly(path string, immutable bool) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	if immutable {
		dsn += "&immutable=1"
	}
	return sql.Open("sqlite", dsn)
}

type authStatus struct {
	APIKey      string `json:"apiKey"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	StatusProto string `json:"userStatusProtoBinaryBase64"`
}

// StateStore reads the signed-in account the editor keeps in its global
// state database.
func StateStore(path string) Source {
	return Source{
		Name: "state_store",
		Extract: func(ctx context.Context) (*Session, error) {
			if path == "" || !exists(path) {
				return nil, nil
			}
			db, err := openReadOnly(path, false)
			if err != nil {
				return nil, err
			}
			defer db.Close()

			var value []byte
			err = db.QueryRowContext(ctx, "SELECT value FROM ItemTable WHERE key = ?", authStatusKey).Scan(&value)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", path, err)
			}

			var st authStatus
			if err := json.Unmarshal(value, &st); err != nil {
				return nil, fmt.Errorf("decode %s: %w", authStatusKey, err)
			}
			if st.APIKey == "" {
				return nil, nil
			}
			return &Session{
				Cookie:  bearerCookie(st.APIKey),
				Profile: &Profile{Name: st.Name, Email: st.Email, StatusProto: st.StatusProto},
			}, nil
		},
	}
}

// Antigravity hosts first, then the bare Google domains, then the rest.
const cookieQuery = `SELECT name, value, encrypted_value FROM cookies
	WHERE host_key LIKE '%google.com%' OR host_key LIKE '%antigravity%'
	ORDER BY CASE
		WHEN host_key LIKE '%antigravity%' THEN 1
		WHEN host_key = '.google.com' THEN 2
		WHEN host_key = 'google.com' THEN 3
		ELSE 4
	END`

// BrowserCookies reads Google and Antigravity cookies from the first
// profile directory that yields any.
func BrowserCookies(profileDirs []string, dec Decryptor) Source {
	return Source{
		Name: "browser_cookies",
		Extract: func(ctx context.Context) (*Session, error) {
			var errs []error
			for _, dir := range profileDirs {
				path := cookieDB(dir)
				if path == "" {
					continue
				}
				cookie, err := readCookies(ctx, path, dec)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if cookie != "" {
					return &Session{Cookie: cookie}, nil
				}
			}
			return nil, errors.Join(errs...)
		},
	}
}

func cookieDB(profileDir string) string {
	for _, p := range []string{filepath.Join(profileDir, "Network", "Cookies"), filepath.Join(profileDir, "Cookies")} {
		if exists(p) {
			return p
		}
	}
	return ""
}

func readCookies(ctx context.Context, path string, dec Decryptor) (string, error) {
	db, err := openReadOnly(path, true)
	if err != nil {
		return "", err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, cookieQuery)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", path, err)
	}
	defer rows.Close()

	var pairs []string
	for rows.Next() {
		var (
			name, value string
			encrypted   []byte
		)
		if err := rows.Scan(&name, &value, &encrypted); err != nil {
			return "", fmt.Errorf("scan %s: %w", path, err)
		}
		if len(encrypted) > 0 {
			value = decrypt(ctx, dec, encrypted)
		}
		if value != "" {
			pairs = append(pairs, name+"="+value)
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(pairs, "; "), nil
}
