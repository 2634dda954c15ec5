package session

import (
	"os"
	"path/filepath"
	"runtime"
)

var profileNames = []string{"Default", "Profile 1", "Profile 2", "Profile 3", "Antigravity", "AntigravityProfile"}

// Paths locates the credential stores on disk.
type Paths struct {
	StateDB      string   // editor global state.vscdb
	BrowserRoots []string // Chromium "User Data" style roots
	AppDir       string   // the editor's own Electron profile
}

// DefaultPaths resolves the store locations for the running user.
func DefaultPaths() (Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, err
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, err
	}
	return PathsFor(runtime.GOOS, home, configDir), nil
}

// PathsFor is DefaultPaths with the platform and base directories supplied.
func PathsFor(goos, home, configDir string) Paths {
	appDir := filepath.Join(configDir, "Antigravity")
	p := Paths{
		StateDB: filepath.Join(appDir, "User", "globalStorage", "state.vscdb"),
		AppDir:  appDir,
	}
	switch goos {
	case "windows":
		local := filepath.Join(home, "AppData", "Local")
		p.BrowserRoots = []string{
			filepath.Join(local, "Google", "Chrome", "User Data"),
			filepath.Join(local, "Microsoft", "Edge", "User Data"),
			filepath.Join(local, "Google", "Chrome Dev", "User Data"),
			filepath.Join(local, "Chromium", "User Data"),
		}
	case "darwin":
		p.BrowserRoots = []string{
			filepath.Join(configDir, "Google", "Chrome"),
			filepath.Join(configDir, "Microsoft Edge"),
			filepath.Join(configDir, "Google", "Chrome Dev"),
			filepath.Join(configDir, "Chromium"),
		}
	default:
		p.BrowserRoots = []string{
			filepath.Join(configDir, "google-chrome"),
			filepath.Join(configDir, "microsoft-edge"),
			filepath.Join(configDir, "google-chrome-unstable"),
			filepath.Join(configDir, "chromium"),
		}
	}
	return p
}

// ProfileDirs lists every browser profile directory worth checking, in
// order, followed by the editor's own profile.
func (p Paths) ProfileDirs() []string {
	var dirs []string
	for _, root := range p.BrowserRoots {
		for _, name := range profileNames {
			dirs = append(dirs, filepath.Join(root, name))
		}
	}
	if p.AppDir != "" {
		dirs = append(dirs, p.AppDir)
	}
	return dirs
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
