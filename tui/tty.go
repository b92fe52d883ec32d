package tui

import "os"

// IsTTY reports whether stderr is connected to a terminal.
func IsTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
