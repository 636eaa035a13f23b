package util

import (
	"fmt"
	"strings"
)

// ParseMemory converts a memory quantity string ("4Gi", "512M", "2048")
// into MiB. A bare number is taken as MiB. Empty input returns 0.
func ParseMemory(memory string) (int, error) {
	memory = strings.TrimSpace(memory)
	if memory == "" {
		return 0, nil
	}

	var value float64
	var unit string

	n, err := fmt.Sscanf(memory, "%f%s", &value, &unit)
	if err != nil && n == 0 {
		return 0, fmt.Errorf("invalid memory quantity: %s", memory)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative memory quantity: %s", memory)
	}
	if n == 1 {
		return int(value), nil
	}

	switch strings.ToUpper(strings.TrimSpace(unit)) {
	case "K", "KB", "KI", "KIB":
		return int(value / 1024), nil
	case "M", "MB", "MI", "MIB":
		return int(value), nil
	case "G", "GB", "GI", "GIB":
		return int(value * 1024), nil
	case "T", "TB", "TI", "TIB":
		return int(value * 1024 * 1024), nil
	default:
		return 0, fmt.Errorf("unknown memory unit: %s", unit)
	}
}
