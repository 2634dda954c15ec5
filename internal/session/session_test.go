package session

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tnunamak/gravmeter/internal/api"
)

func createDB(t *testing.T, path string, stmts ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
}

const itemTable = `CREATE TABLE ItemTable (key TEXT UNIQUE ON CONFLICT REPLACE, value BLOB)`

const cookiesTable = `CREATE TABLE cookies (host_key TEXT NOT NULL, name TEXT NOT NULL, value TEXT NOT NULL, encrypted_value BLOB DEFAULT '')`

func TestStateStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "User", "globalStorage", "state.vscdb")
	createDB(t, path, itemTable,
		`INSERT INTO ItemTable VALUES ('other', 'x')`,
		`INSERT INTO ItemTable VALUES ('antigravityAuthStatus', '{"apiKey":"ya29.key","name":"Ada","email":"ada@example.com","userStatusProtoBinaryBase64":"AAEC"}')`,
	)

	s, err := StateStore(path).Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if s == nil {
		t.Fatal("no session")
	}
	if s.Cookie != "Authorization=Bearer ya29.key" {
		t.Errorf("cookie = %q", s.Cookie)
	}
	if s.Profile == nil || s.Profile.Email != "ada@example.com" || s.Profile.StatusProto != "AAEC" {
		t.Errorf("profile = %+v", s.Profile)
	}
}

func TestStateStore_absent(t *testing.T) {
	dir := t.TempDir()
	if s, err := StateStore(filepath.Join(dir, "missing.vscdb")).Extract(context.Background()); s != nil || err != nil {
		t.Errorf("missing file: got %v, %v", s, err)
	}

	noKey := filepath.Join(dir, "nokey.vscdb")
	createDB(t, noKey, itemTable, `INSERT INTO ItemTable VALUES ('antigravityAuthStatus', '{"name":"x"}')`)
	if s, err := StateStore(noKey).Extract(context.Background()); s != nil || err != nil {
		t.Errorf("no apiKey: got %v, %v", s, err)
	}

	empty := filepath.Join(dir, "empty.vscdb")
	createDB(t, empty, itemTable)
	if s, err := StateStore(empty).Extract(context.Background()); s != nil || err != nil {
		t.Errorf("no row: got %v, %v", s, err)
	}
}

func TestBrowserCookies_orderAndDecryption(t *testing.T) {
	root := t.TempDir()
	profile := filepath.Join(root, "Default")
	createDB(t, filepath.Join(profile, "Network", "Cookies"), cookiesTable,
		`INSERT INTO cookies VALUES ('google.com', 'BARE', 'b', '')`,
		`INSERT INTO cookies VALUES ('accounts.google.com', 'REST', 'r', '')`,
		`INSERT INTO cookies VALUES ('.google.com', 'SID', '', X'01020304')`,
		`INSERT INTO cookies VALUES ('.antigravity.google', 'AG', 'a', '')`,
		`INSERT INTO cookies VALUES ('.google.com', 'NEW', '', X'763130AABB')`,
		`INSERT INTO cookies VALUES ('example.com', 'NOPE', 'n', '')`,
	)

	dec := DecryptorFunc(func(_ context.Context, blob []byte) (string, error) {
		if blob[0] == 0x01 {
			return "decrypted", nil
		}
		return "", errors.New("unexpected blob")
	})

	s, err := BrowserCookies([]string{filepath.Join(root, "Profile 1"), profile}, dec).Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if s == nil {
		t.Fatal("no session")
	}
	parts := strings.Split(s.Cookie, "; ")
	if len(parts) != 4 {
		t.Fatalf("cookie = %q", s.Cookie)
	}
	if parts[0] != "AG=a" || parts[1] != "SID=decrypted" || parts[2] != "BARE=b" || parts[3] != "REST=r" {
		t.Errorf("cookie order = %q", s.Cookie)
	}
}

func TestBrowserCookies_legacyCookiesPath(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "Antigravity")
	createDB(t, filepath.Join(profile, "Cookies"), cookiesTable,
		`INSERT INTO cookies VALUES ('antigravity.google', 'session', 's1', '')`)

	s, err := BrowserCookies([]string{profile}, nil).Extract(context.Background())
	if err != nil || s == nil || s.Cookie != "session=s1" {
		t.Errorf("got %+v, %v", s, err)
	}
}

func TestBrowserCookies_allEncryptedWithoutDecryptor(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "Default")
	createDB(t, filepath.Join(profile, "Cookies"), cookiesTable,
		`INSERT INTO cookies VALUES ('.google.com', 'SID', '', X'01020304')`)

	s, err := BrowserCookies([]string{profile}, nil).Extract(context.Background())
	if s != nil || err != nil {
		t.Errorf("got %+v, %v; want nothing", s, err)
	}
}

func TestLocalStorageScan(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "Default")
	dir := filepath.Join(profile, "Local Storage", "leveldb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "000003.log"), []byte("\x00\x01no match here\x00"), 0644)
	os.WriteFile(filepath.Join(dir, "000005.ldb"), []byte("\x00\x01_https://x\x00antigravity_token=abc123\x00\x02tail"), 0644)
	os.WriteFile(filepath.Join(dir, "MANIFEST-000001"), []byte("antigravity_should_not_be_read"), 0644)

	s, err := LocalStorageScan([]string{profile}).Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if s == nil || s.Cookie != "antigravity_token=abc123" {
		t.Errorf("got %+v", s)
	}
}

func TestDecrypt_versionedBlobsUnsupported(t *testing.T) {
	called := false
	dec := DecryptorFunc(func(context.Context, []byte) (string, error) {
		called = true
		return "x", nil
	})
	for _, blob := range [][]byte{[]byte("v10abc"), []byte("1xyz")} {
		if got := decrypt(context.Background(), dec, blob); got != "" {
			t.Errorf("decrypt(%q) = %q, want empty", blob, got)
		}
	}
	if called {
		t.Error("decryptor invoked for a versioned blob")
	}
	failing := DecryptorFunc(func(context.Context, []byte) (string, error) { return "", errors.New("boom") })
	if got := decrypt(context.Background(), failing, []byte{0x01}); got != "" {
		t.Errorf("failing decryptor = %q, want empty", got)
	}
}

func TestResolver_firstMatchWinsAndValidate(t *testing.T) {
	var calls []string
	src := func(name, cookie string, err error) Source {
		return Source{Name: name, Extract: func(context.Context) (*Session, error) {
			calls = append(calls, name)
			if cookie == "" {
				return nil, err
			}
			return &Session{Cookie: cookie}, err
		}}
	}
	r := &Resolver{
		Sources: []Source{
			src("broken", "", errors.New("locked")),
			src("empty", "", nil),
			src("rejected", "bad=1", nil),
			src("good", "good=1", nil),
			src("never", "never=1", nil),
		},
		Validate: func(_ context.Context, s *Session) error {
			if s.Cookie == "bad=1" {
				return api.ErrUnauthorized
			}
			return nil
		},
		Logger: zerolog.Nop(),
	}

	s, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Source != "good" || s.Cookie != "good=1" {
		t.Errorf("session = %+v", s)
	}
	if strings.Join(calls, ",") != "broken,empty,rejected,good" {
		t.Errorf("calls = %v", calls)
	}
}

func TestResolver_nothingFound(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(PathsFor("linux", dir, filepath.Join(dir, ".config")), nil, "", zerolog.Nop())
	if _, err := r.Resolve(context.Background()); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	r = NewResolver(PathsFor("linux", dir, filepath.Join(dir, ".config")), nil, "manual-key", zerolog.Nop())
	s, err := r.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Source != "manual" || s.Cookie != "Authorization=Bearer manual-key" {
		t.Errorf("session = %+v", s)
	}
}

func TestPathsFor(t *testing.T) {
	p := PathsFor("linux", "/home/u", "/home/u/.config")
	if p.StateDB != filepath.Join("/home/u/.config", "Antigravity", "User", "globalStorage", "state.vscdb") {
		t.Errorf("state db = %s", p.StateDB)
	}
	dirs := p.ProfileDirs()
	if len(dirs) != len(p.BrowserRoots)*len(profileNames)+1 {
		t.Fatalf("profile dirs = %d", len(dirs))
	}
	if dirs[len(dirs)-1] != p.AppDir {
		t.Errorf("editor profile should be checked last, got %s", dirs[len(dirs)-1])
	}
}
