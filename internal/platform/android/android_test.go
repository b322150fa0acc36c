package android

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

const sampleInventory = `device: pixel-test
applications:
  - package_name: com.example.notes
    app_name: Notes
    is_system_app: false
    install_source: play_store
    declared_permissions:
      - android.permission.INTERNET
    granted_permissions:
      - android.permission.INTERNET
  - package_name: com.android.settings
    app_name: Settings
    is_system_app: true
  - package_name: com.example.sketchy
    app_name: Sketchy
    declared_permissions:
      - android.permission.READ_SMS
      - android.permission.CAMERA
    granted_permissions:
      - android.permission.READ_SMS
    registered_receivers:
      - android.intent.action.BOOT_COMPLETED
`

func newInventory(t *testing.T, content string) *InventoryRegistry {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/data/inventory.yaml", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewInventoryRegistry(fs, "/data/inventory.yaml", logger.NewNop())
}

func TestInventoryRegistryList(t *testing.T) {
	reg := newInventory(t, sampleInventory)

	apps, err := reg.ListInstalledApplications(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 3 {
		t.Fatalf("got %d apps, want 3", len(apps))
	}
	want := []string{"com.example.notes", "com.android.settings", "com.example.sketchy"}
	for i, app := range apps {
		if app.PackageName != want[i] {
			t.Errorf("apps[%d] = %s, want %s", i, app.PackageName, want[i])
		}
	}
	if !apps[1].IsSystemApp || apps[0].IsSystemApp {
		t.Error("system flag not decoded")
	}
	if apps[0].InstallSource != models.AppInstallSourcePlayStore {
		t.Errorf("install source = %q", apps[0].InstallSource)
	}
}

func TestInventoryRegistryMetadata(t *testing.T) {
	reg := newInventory(t, sampleInventory)

	meta, err := reg.PackageMetadata(context.Background(), "com.example.sketchy")
	if err != nil {
		t.Fatal(err)
	}
	if !meta.IsGranted("android.permission.READ_SMS") || meta.IsGranted("android.permission.CAMERA") {
		t.Errorf("granted = %v", meta.GrantedPermissions)
	}
	if len(meta.RegisteredReceivers) != 1 {
		t.Errorf("receivers = %v", meta.RegisteredReceivers)
	}

	_, err = reg.PackageMetadata(context.Background(), "com.missing")
	if !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("err = %v, want ErrPackageNotFound", err)
	}
}

func TestInventoryRegistryErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		reg := NewInventoryRegistry(afero.NewMemMapFs(), "/nope.yaml", logger.NewNop())
		if _, err := reg.ListInstalledApplications(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("malformed yaml", func(t *testing.T) {
		reg := newInventory(t, "applications: [")
		if _, err := reg.ListInstalledApplications(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("entry without package", func(t *testing.T) {
		reg := newInventory(t, "applications:\n  - app_name: Nameless\n")
		if _, err := reg.ListInstalledApplications(context.Background()); err == nil {
			t.Error("expected error")
		}
	})
}

func TestInventoryRegistryRereadsFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/inv.yaml"
	afero.WriteFile(fs, path, []byte("applications:\n  - package_name: com.a\n"), 0o644)
	reg := NewInventoryRegistry(fs, path, logger.NewNop())

	apps, _ := reg.ListInstalledApplications(context.Background())
	if len(apps) != 1 {
		t.Fatalf("got %d apps", len(apps))
	}

	afero.WriteFile(fs, path, []byte("applications:\n  - package_name: com.a\n  - package_name: com.b\n"), 0o644)
	apps, _ = reg.ListInstalledApplications(context.Background())
	if len(apps) != 2 {
		t.Fatalf("got %d apps after update", len(apps))
	}
}

func TestCaptureRoundTrip(t *testing.T) {
	src := newInventory(t, sampleInventory)

	var buf bytes.Buffer
	n, err := Capture(context.Background(), src, "captured", &buf, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("captured %d, want 3", n)
	}

	copyReg := newInventory(t, buf.String())
	apps, err := copyReg.ListInstalledApplications(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 3 || apps[2].AppName != "Sketchy" {
		t.Fatalf("apps = %+v", apps)
	}
	meta, err := copyReg.PackageMetadata(context.Background(), "com.example.sketchy")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(meta.DeclaredPermissions, []string{"android.permission.READ_SMS", "android.permission.CAMERA"}) {
		t.Errorf("declared = %v", meta.DeclaredPermissions)
	}
	if !strings.Contains(buf.String(), "device: captured") {
		t.Error("device name not written")
	}
}

type fakeRunner struct {
	outputs map[string]string
	calls   [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	key := strings.Join(args, " ")
	out, ok := f.outputs[key]
	if !ok {
		return nil, fmt.Errorf("unexpected command %q", key)
	}
	return []byte(out), nil
}

const sampleDumpsys = `Activity Resolver Table:
  Non-Data Actions:
      android.intent.action.MAIN:
        1a2b3c com.example.sketchy/.MainActivity filter 4d5e6f

Receiver Resolver Table:
  Non-Data Actions:
      android.intent.action.BOOT_COMPLETED:
        7a8b9c com.example.sketchy/.BootReceiver filter 1f2e3d
      android.provider.Telephony.SMS_RECEIVED:
        7a8b9c com.example.sketchy/.BootReceiver filter 5a6b7c
      android.intent.action.PACKAGE_ADDED:
        0f0f0f com.other.app/.Receiver filter 9e9e9e

Packages:
  Package [com.example.sketchy] (1234abcd):
    userId=10123
    requested permissions:
      android.permission.INTERNET
      android.permission.READ_SMS
      android.permission.CAMERA
    install permissions:
      android.permission.INTERNET: granted=true
    User 0: ceDataInode=1234 installed=true hidden=false
      runtime permissions:
        android.permission.READ_SMS: granted=true, flags=[ USER_SET ]
        android.permission.CAMERA: granted=false, flags=[ USER_SET ]
`

func TestParseDumpsysPackage(t *testing.T) {
	meta := ParseDumpsysPackage("com.example.sketchy", []byte(sampleDumpsys))

	wantDeclared := []string{"android.permission.INTERNET", "android.permission.READ_SMS", "android.permission.CAMERA"}
	if !slices.Equal(meta.DeclaredPermissions, wantDeclared) {
		t.Errorf("declared = %v", meta.DeclaredPermissions)
	}
	wantGranted := []string{"android.permission.INTERNET", "android.permission.READ_SMS"}
	if !slices.Equal(meta.GrantedPermissions, wantGranted) {
		t.Errorf("granted = %v", meta.GrantedPermissions)
	}
	wantReceivers := []string{"android.intent.action.BOOT_COMPLETED", "android.provider.Telephony.SMS_RECEIVED"}
	if !slices.Equal(meta.RegisteredReceivers, wantReceivers) {
		t.Errorf("receivers = %v", meta.RegisteredReceivers)
	}
}

func TestADBRegistryList(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"-s emulator-5554 shell pm list packages -i": "package:com.android.settings  installer=null\n" +
			"package:com.example.notes  installer=com.android.vending\n" +
			"package:com.example.sketchy  installer=com.sketchy.store\n" +
			"package:com.example.dev  installer=com.android.shell\n",
		"-s emulator-5554 shell pm list packages -s": "package:com.android.settings\n",
	}}
	reg := NewADBRegistry(ADBConfig{Serial: "emulator-5554"}, runner, logger.NewNop())

	apps, err := reg.ListInstalledApplications(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(apps) != 4 {
		t.Fatalf("got %d apps", len(apps))
	}

	want := []struct {
		pkg    string
		system bool
		source models.AppInstallSource
	}{
		{"com.android.settings", true, models.AppInstallSourcePreloaded},
		{"com.example.notes", false, models.AppInstallSourcePlayStore},
		{"com.example.sketchy", false, models.AppInstallSourceSideloaded},
		{"com.example.dev", false, models.AppInstallSourceADB},
	}
	for i, w := range want {
		if apps[i].PackageName != w.pkg || apps[i].IsSystemApp != w.system || apps[i].InstallSource != w.source {
			t.Errorf("apps[%d] = %+v, want %+v", i, apps[i], w)
		}
	}
	if runner.calls[0][0] != "adb" {
		t.Errorf("default binary = %q", runner.calls[0][0])
	}
}

func TestADBRegistryMetadata(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		"shell dumpsys package com.example.sketchy": sampleDumpsys,
		"shell dumpsys package com.example.gone":    "Unable to find package: com.example.gone\n",
	}}
	reg := NewADBRegistry(ADBConfig{Path: "/opt/adb"}, runner, logger.NewNop())

	meta, err := reg.PackageMetadata(context.Background(), "com.example.sketchy")
	if err != nil {
		t.Fatal(err)
	}
	if len(meta.GrantedDangerousPermissions()) == 0 {
		t.Error("expected granted dangerous permissions")
	}

	if _, err := reg.PackageMetadata(context.Background(), "com.example.gone"); !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("err = %v, want ErrPackageNotFound", err)
	}
	if _, err := reg.PackageMetadata(context.Background(), "bad; rm -rf /"); !errors.Is(err, ErrPackageNotFound) {
		t.Errorf("err = %v, want ErrPackageNotFound", err)
	}
	if len(runner.calls) != 2 {
		t.Errorf("runner called %d times, invalid names must not reach the shell", len(runner.calls))
	}
}
