// Package update replaces the running binary with the latest GitHub release.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	repo           = "tnunamak/gravmeter"
	DefaultAPIBase = "https://api.github.com"
	httpTimeout    = 15 * time.Second
)

// ErrNoAsset means the release has no binary for this platform.
var ErrNoAsset = errors.New("release has no binary for this platform")

type Release struct {
	Version string
	URL     string
}

type ghRelease struct {
	TagName string    `json:"tag_name"`
	Assets  []ghAsset `json:"assets"`
}

type ghAsset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
}

type Updater struct {
	APIBase string
	GOOS    string
	GOARCH  string
	Client  *http.Client
	Logger  zerolog.Logger
}

func New(logger zerolog.Logger) *Updater {
	return &Updater{
		APIBase: DefaultAPIBase,
		GOOS:    runtime.GOOS,
		GOARCH:  runtime.GOARCH,
		Client:  &http.Client{Timeout: httpTimeout},
		Logger:  logger,
	}
}

// AssetName is the release asset for a platform.
func AssetName(goos, goarch string) string {
	name := "gravmeter-" + goos + "-" + goarch
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

// Check returns the latest release if it is newer than currentVersion,
// nil when up to date. Development builds never update.
func (u *Updater) Check(ctx context.Context, currentVersion string) (*Release, error) {
	if currentVersion == "dev" || currentVersion == "" {
		return nil, nil
	}

	url := strings.TrimRight(u.APIBase, "/") + "/repos/" + repo + "/releases/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := u.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("check update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("check update: GitHub API returned %d", resp.StatusCode)
	}

	var rel ghRelease
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("check update: %w", err)
	}
	if rel.TagName == "" || !Newer(rel.TagName, currentVersion) {
		return nil, nil
	}

	want := AssetName(u.GOOS, u.GOARCH)
	for _, a := range rel.Assets {
		if a.Name == want {
			return &Release{Version: rel.TagName, URL: a.URL}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s has no %s", ErrNoAsset, rel.TagName, want)
}

// Newer reports whether version a is later than b. Both may carry a "v"
// prefix; missing or non-numeric parts count as zero.
func Newer(a, b string) bool {
	pa, pb := parts(a), parts(b)
	for i := range 3 {
		if pa[i] != pb[i] {
			return pa[i] > pb[i]
		}
	}
	return false
}

func parts(v string) [3]int {
	v = StripV(v)
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	var out [3]int
	for i, p := range strings.SplitN(v, ".", 3) {
		out[i], _ = strconv.Atoi(p)
	}
	return out
}

// Apply downloads the release binary, smoke-tests it and swaps it in for
// exe. The caller should restart after Apply returns.
func (u *Updater) Apply(ctx context.Context, rel *Release, exe string) error {
	tmpDir, err := os.MkdirTemp(filepath.Dir(exe), ".gravmeter-update-*")
	if err != nil {
		tmpDir, err = os.MkdirTemp("", "gravmeter-update-*")
		if err != nil {
			return fmt.Errorf("create temp dir: %w", err)
		}
	}
	defer os.RemoveAll(tmpDir)

	tmpBin := filepath.Join(tmpDir, AssetName(u.GOOS, u.GOARCH))
	if err := u.download(ctx, rel.URL, tmpBin); err != nil {
		return err
	}

	// macOS quarantine
	if u.GOOS == "darwin" {
		exec.Command("xattr", "-d", "com.apple.quarantine", tmpBin).Run()
	}

	if err := exec.CommandContext(ctx, tmpBin, "version").Run(); err != nil {
		return fmt.Errorf("verify binary: %w", err)
	}

	// os.Rename fails across filesystems; fall back to copy.
	if err := os.Rename(tmpBin, exe); err != nil {
		if err := copyFile(tmpBin, exe); err != nil {
			return fmt.Errorf("replace binary: %w", err)
		}
	}
	u.Logger.Info().Str("version", rel.Version).Str("path", exe).Msg("binary updated")
	return nil
}

func (u *Updater) download(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := *u.Client
	client.Timeout = 2 * time.Minute
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write binary: %w", err)
	}
	return f.Close()
}

// Restart launches a new tray process and returns. The caller should
// exit after calling this.
func Restart(exe string) error {
	cmd := exec.Command(exe, "tray")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Chmod(0755)
}

// StripV removes a leading "v" prefix for display: "v1.2.3" -> "1.2.3".
func StripV(version string) string {
	return strings.TrimPrefix(version, "v")
}
