package monitoring

import (
	"fmt"
	"os"
)

// Version is populated from build-time ldflags
var Version = "dev"

// GenerateInstanceID creates the identifier of an instance.
// Restarting on the same host updates the same record.
func GenerateInstanceID(instanceType InstanceType) string {
	return fmt.Sprintf("%s-%s", GetHostname(), instanceType)
}

// GetHostname returns the system hostname
func GetHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// FormatBytes converts bytes to human-readable format
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
