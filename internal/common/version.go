package common

// Version is the cartographer build version, overridden at link time via
// -ldflags "-X .../internal/common.Version=..."
var Version = "0.9.0-dev"

// Build is the VCS revision, overridden at link time
var Build = "unknown"

// GetVersion returns the full version string
func GetVersion() string {
	return Version + " (" + Build + ")"
}

// AtlasVersion is the archive format version written into manifests
const AtlasVersion = "1"

// ProducerName identifies this engine in manifests and provenance records
const ProducerName = "cartographer"
