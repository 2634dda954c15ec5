package autostart

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInstaller_linux(t *testing.T) {
	dir := t.TempDir()
	i := &Installer{GOOS: "linux", ConfigDir: dir}

	if ok, err := i.Installed(); err != nil || ok {
		t.Fatalf("Installed before install = %v, %v", ok, err)
	}
	if err := i.Install("/opt/gravmeter/bin/gravmeter"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "autostart", "gravmeter.desktop"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `Exec="/opt/gravmeter/bin/gravmeter" tray`) {
		t.Errorf("desktop entry:\n%s", data)
	}
	if ok, _ := i.Installed(); !ok {
		t.Error("Installed = false after install")
	}

	if err := i.Uninstall(); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if err := i.Uninstall(); err != nil {
		t.Errorf("second Uninstall: %v", err)
	}
}

func TestInstaller_darwinLoadsAgent(t *testing.T) {
	home := t.TempDir()
	var calls []string
	i := &Installer{GOOS: "darwin", Home: home, Launchctl: func(args ...string) error {
		calls = append(calls, strings.Join(args, " "))
		return nil
	}}
	if err := i.Install("/usr/local/bin/gravmeter"); err != nil {
		t.Fatalf("Install: %v", err)
	}
	path := filepath.Join(home, "Library", "LaunchAgents", "dev.gravmeter.tray.plist")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<string>/usr/local/bin/gravmeter</string>") {
		t.Errorf("plist:\n%s", data)
	}
	i.Uninstall()
	if len(calls) != 2 || calls[0] != "load "+path || calls[1] != "unload "+path {
		t.Errorf("launchctl calls = %q", calls)
	}
}

func TestInstaller_windowsAndUnsupported(t *testing.T) {
	appData := t.TempDir()
	i := &Installer{GOOS: "windows", ConfigDir: appData}
	if err := i.Install(`C:\Tools\gravmeter.exe`); err != nil {
		t.Fatalf("Install: %v", err)
	}
	path, _ := i.Path()
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `start "" "C:\Tools\gravmeter.exe" tray`) {
		t.Errorf("startup script = %q", data)
	}

	if err := (&Installer{GOOS: "plan9"}).Install("x"); err == nil {
		t.Error("unsupported OS accepted")
	}
}
