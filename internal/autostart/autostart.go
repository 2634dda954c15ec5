// Package autostart registers `gravmeter tray` to start at login.
package autostart

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

const launchAgentLabel = "dev.gravmeter.tray"

// Linux: XDG autostart .desktop file

const desktopEntry = `[Desktop Entry]
Type=Application
Name=Gravmeter
Comment=Antigravity quota monitor
Exec="%s" tray
Terminal=false
X-GNOME-Autostart-enabled=true
`

// macOS: LaunchAgent plist

const launchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>` + launchAgentLabel + `</string>
    <key>ProgramArguments</key>
    <array>
        <string>%s</string>
        <string>tray</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

// Windows: a script in the per-user Startup folder

const startupScript = "@echo off\r\nstart \"\" \"%s\" tray\r\n"

// Installer writes and removes the login entry for one platform.
type Installer struct {
	GOOS      string
	Home      string
	ConfigDir string // XDG config dir on Linux, %APPDATA% on Windows

	// Launchctl runs launchctl on macOS; nil runs the real binary.
	Launchctl func(args ...string) error
}

// Default is the installer for the running system.
func Default() (*Installer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return &Installer{GOOS: runtime.GOOS, Home: home, ConfigDir: configDir}, nil
}

// Path is where the entry lives.
func (i *Installer) Path() (string, error) {
	switch i.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		return filepath.Join(i.ConfigDir, "autostart", "gravmeter.desktop"), nil
	case "darwin":
		return filepath.Join(i.Home, "Library", "LaunchAgents", launchAgentLabel+".plist"), nil
	case "windows":
		return filepath.Join(i.ConfigDir, "Microsoft", "Windows", "Start Menu", "Programs", "Startup", "gravmeter.cmd"), nil
	default:
		return "", fmt.Errorf("autostart not supported on %s", i.GOOS)
	}
}

func (i *Installer) content(bin string) string {
	switch i.GOOS {
	case "darwin":
		return fmt.Sprintf(launchAgentPlist, bin)
	case "windows":
		return fmt.Sprintf(startupScript, bin)
	default:
		return fmt.Sprintf(desktopEntry, bin)
	}
}

// Install registers bin to run `tray` at login.
func (i *Installer) Install(bin string) error {
	path, err := i.Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(i.content(bin)), 0644); err != nil {
		return err
	}
	if i.GOOS == "darwin" {
		return i.launchctl("load", path)
	}
	return nil
}

// Uninstall removes the entry. A missing entry is not an error.
func (i *Installer) Uninstall() error {
	path, err := i.Path()
	if err != nil {
		return err
	}
	if i.GOOS == "darwin" {
		i.launchctl("unload", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Installed reports whether the entry exists.
func (i *Installer) Installed() (bool, error) {
	path, err := i.Path()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (i *Installer) launchctl(args ...string) error {
	if i.Launchctl != nil {
		return i.Launchctl(args...)
	}
	return exec.Command("launchctl", args...).Run()
}

// ExecPath is the resolved path of the running binary.
func ExecPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}
