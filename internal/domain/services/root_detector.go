package services

import (
	"github.com/spf13/afero"

	"secureguard-lab/pkg/logger"
)

// DefaultRootPaths are filesystem locations left behind by common root tooling.
// The list is a heuristic; a miss is not proof the device is clean.
var DefaultRootPaths = []string{
	"/system/app/Superuser.apk",
	"/sbin/su",
	"/system/bin/su",
	"/system/xbin/su",
	"/data/local/xbin/su",
	"/data/local/bin/su",
	"/system/sd/xbin/su",
	"/system/bin/failsafe/su",
	"/data/local/su",
	"/su/bin/su",
}

// RootDetector checks for device-level compromise indicators
type RootDetector struct {
	fs     afero.Fs
	paths  []string
	logger *logger.Logger
}

// NewRootDetector creates a detector over fs. Empty paths selects DefaultRootPaths.
func NewRootDetector(fs afero.Fs, paths []string, log *logger.Logger) *RootDetector {
	if len(paths) == 0 {
		paths = DefaultRootPaths
	}
	return &RootDetector{
		fs:     fs,
		paths:  paths,
		logger: log.WithComponent("root-detector"),
	}
}

// IsDeviceRooted returns true if any indicator path exists
func (d *RootDetector) IsDeviceRooted() bool {
	for _, path := range d.paths {
		exists, err := afero.Exists(d.fs, path)
		if err != nil {
			d.logger.Debug().Err(err).Str("path", path).Msg("root indicator probe failed")
			continue
		}
		if exists {
			d.logger.Info().Str("path", path).Msg("root indicator found")
			return true
		}
	}
	return false
}
