package models

// AppInstallSource represents how an app was installed
type AppInstallSource string

const (
	AppInstallSourcePlayStore  AppInstallSource = "play_store"
	AppInstallSourceSideloaded AppInstallSource = "sideloaded"
	AppInstallSourceADB        AppInstallSource = "adb"
	AppInstallSourcePreloaded  AppInstallSource = "preloaded"
	AppInstallSourceUnknown    AppInstallSource = "unknown"
)

// InstalledApp is one entry of the installed-application registry
type InstalledApp struct {
	PackageName   string           `json:"package_name" yaml:"package_name"`
	AppName       string           `json:"app_name" yaml:"app_name"`
	IsSystemApp   bool             `json:"is_system_app" yaml:"is_system_app"`
	InstallSource AppInstallSource `json:"install_source,omitempty" yaml:"install_source,omitempty"`
	VersionName   string           `json:"version_name,omitempty" yaml:"version_name,omitempty"`
}

// DisplayName falls back to the package name when no label is known
func (a InstalledApp) DisplayName() string {
	if a.AppName != "" {
		return a.AppName
	}
	return a.PackageName
}

// PackageMetadata is the live manifest view of one package
type PackageMetadata struct {
	PackageName         string   `json:"package_name" yaml:"package_name"`
	DeclaredPermissions []string `json:"declared_permissions" yaml:"declared_permissions"`
	GrantedPermissions  []string `json:"granted_permissions" yaml:"granted_permissions"`
	RegisteredReceivers []string `json:"registered_receivers" yaml:"registered_receivers"`
}

// IsGranted reports whether permission is currently granted
func (m *PackageMetadata) IsGranted(permission string) bool {
	for _, p := range m.GrantedPermissions {
		if p == permission {
			return true
		}
	}
	return false
}

// GrantedDangerousPermissions returns the granted dangerous permissions in catalog order
func (m *PackageMetadata) GrantedDangerousPermissions() []string {
	var granted []string
	for _, p := range DangerousPermissions {
		if m.IsGranted(p) {
			granted = append(granted, p)
		}
	}
	return granted
}
