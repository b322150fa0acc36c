package android

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"time"

	"secureguard-lab/internal/domain/models"
	"secureguard-lab/pkg/logger"
)

// CommandRunner executes an external command and returns its stdout
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host
type ExecRunner struct{}

// Run executes name with args
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// name is the configured adb binary and args are built from fixed verbs
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// ADBConfig configures the adb-backed registry
type ADBConfig struct {
	Path    string
	Serial  string
	Timeout time.Duration
}

// ADBRegistry queries a connected device through adb
type ADBRegistry struct {
	config ADBConfig
	runner CommandRunner
	logger *logger.Logger
}

// NewADBRegistry creates a new adb registry. A nil runner uses ExecRunner.
func NewADBRegistry(cfg ADBConfig, runner CommandRunner, log *logger.Logger) *ADBRegistry {
	if cfg.Path == "" {
		cfg.Path = "adb"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &ADBRegistry{
		config: cfg,
		runner: runner,
		logger: log.WithComponent("adb-registry"),
	}
}

// EnsureBinary verifies that the adb binary is discoverable
func (r *ADBRegistry) EnsureBinary() error {
	if _, err := exec.LookPath(r.config.Path); err != nil {
		return fmt.Errorf("adb binary not found: %w", err)
	}
	return nil
}

func (r *ADBRegistry) shell(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	full := make([]string, 0, len(args)+3)
	if r.config.Serial != "" {
		full = append(full, "-s", r.config.Serial)
	}
	full = append(full, "shell")
	full = append(full, args...)
	return r.runner.Run(ctx, r.config.Path, full...)
}

// ListInstalledApplications returns packages in package-manager order
func (r *ADBRegistry) ListInstalledApplications(ctx context.Context) ([]models.InstalledApp, error) {
	all, err := r.shell(ctx, "pm", "list", "packages", "-i")
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	system, err := r.shell(ctx, "pm", "list", "packages", "-s")
	if err != nil {
		return nil, fmt.Errorf("failed to list system packages: %w", err)
	}

	systemSet := make(map[string]struct{})
	for _, line := range parsePackageList(system) {
		systemSet[line.name] = struct{}{}
	}

	lines := parsePackageList(all)
	apps := make([]models.InstalledApp, 0, len(lines))
	for _, line := range lines {
		_, isSystem := systemSet[line.name]
		apps = append(apps, models.InstalledApp{
			PackageName:   line.name,
			AppName:       line.name,
			IsSystemApp:   isSystem,
			InstallSource: installSource(line.installer, isSystem),
		})
	}

	r.logger.Debug().Int("packages", len(apps)).Int("system", len(systemSet)).Msg("package list read")
	return apps, nil
}

// PackageMetadata parses `dumpsys package` for one package
func (r *ADBRegistry) PackageMetadata(ctx context.Context, packageName string) (*models.PackageMetadata, error) {
	if !validPackageName.MatchString(packageName) {
		return nil, fmt.Errorf("%w: invalid name %q", ErrPackageNotFound, packageName)
	}

	out, err := r.shell(ctx, "dumpsys", "package", packageName)
	if err != nil {
		return nil, fmt.Errorf("failed to dump package %s: %w", packageName, err)
	}
	if bytes.Contains(out, []byte("Unable to find package")) {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, packageName)
	}

	return ParseDumpsysPackage(packageName, out), nil
}

var validPackageName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)+$`)

type packageLine struct {
	name      string
	installer string
}

// parsePackageList reads `pm list packages` lines: package:<name> [installer=<pkg>]
func parsePackageList(out []byte) []packageLine {
	var lines []packageLine
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "package:") {
			continue
		}
		line := packageLine{name: strings.TrimPrefix(fields[0], "package:")}
		for _, f := range fields[1:] {
			if v, ok := strings.CutPrefix(f, "installer="); ok && v != "null" {
				line.installer = v
			}
		}
		if line.name != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func installSource(installer string, system bool) models.AppInstallSource {
	switch {
	case system && installer == "":
		return models.AppInstallSourcePreloaded
	case installer == "com.android.vending":
		return models.AppInstallSourcePlayStore
	case installer == "com.android.shell" || installer == "adb":
		return models.AppInstallSourceADB
	case installer == "":
		return models.AppInstallSourceUnknown
	default:
		return models.AppInstallSourceSideloaded
	}
}

type dumpsysSection int

const (
	sectionNone dumpsysSection = iota
	sectionReceivers
	sectionRequested
	sectionInstall
	sectionRuntime
)

var permissionLine = regexp.MustCompile(`^([A-Za-z0-9_.]+\.[A-Za-z0-9_]+)(?::\s*(.*))?$`)

// ParseDumpsysPackage extracts requested permissions, granted permissions
// and receiver actions from `dumpsys package <pkg>` output.
func ParseDumpsysPackage(packageName string, out []byte) *models.PackageMetadata {
	meta := &models.PackageMetadata{PackageName: packageName}
	component := packageName + "/"

	section := sectionNone
	currentAction := ""

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if !strings.HasPrefix(line, " ") {
			section = sectionNone
			if trimmed == "Receiver Resolver Table:" {
				section = sectionReceivers
			}
			continue
		}

		switch trimmed {
		case "requested permissions:":
			section = sectionRequested
			continue
		case "install permissions:":
			section = sectionInstall
			continue
		case "runtime permissions:":
			section = sectionRuntime
			continue
		}

		switch section {
		case sectionReceivers:
			if strings.HasSuffix(trimmed, ":") && !strings.Contains(trimmed, " ") && strings.Contains(trimmed, ".") {
				currentAction = strings.TrimSuffix(trimmed, ":")
				continue
			}
			fields := strings.Fields(trimmed)
			if currentAction != "" && len(fields) >= 2 && strings.HasPrefix(fields[1], component) {
				if !slices.Contains(meta.RegisteredReceivers, currentAction) {
					meta.RegisteredReceivers = append(meta.RegisteredReceivers, currentAction)
				}
			}

		case sectionRequested, sectionInstall, sectionRuntime:
			m := permissionLine.FindStringSubmatch(trimmed)
			if m == nil {
				section = sectionNone
				continue
			}
			name, attrs := m[1], m[2]
			if section == sectionRequested {
				if !slices.Contains(meta.DeclaredPermissions, name) {
					meta.DeclaredPermissions = append(meta.DeclaredPermissions, name)
				}
				continue
			}
			if strings.Contains(attrs, "granted=true") && !slices.Contains(meta.GrantedPermissions, name) {
				meta.GrantedPermissions = append(meta.GrantedPermissions, name)
			}
		}
	}

	return meta
}
