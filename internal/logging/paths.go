package logging

import (
	"fmt"
	"os"
)

// DefaultLogPath is the log file used when logging.file is not configured.
const DefaultLogPath = "logs/storyvec.log"

// FindLogFile resolves the log file to view: the explicit path when given,
// else the configured path, else DefaultLogPath.
func FindLogFile(explicit, configured string) (string, error) {
	candidates := []string{explicit, configured, DefaultLogPath}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		if p == explicit {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
	}

	return "", fmt.Errorf("no log file found, set logging.file and run `storyvec serve` or `storyvec index` first")
}
