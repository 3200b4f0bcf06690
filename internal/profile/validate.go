package profile

import "fmt"

// MaxNameLen bounds profile names; they become directory names.
const MaxNameLen = 64

// ValidateName checks that name is usable as a profile directory name:
// non-empty, at most MaxNameLen bytes, lowercase letters, digits,
// underscore and dash only.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("profile name is empty")
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("profile name %q exceeds %d characters", name, MaxNameLen)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return fmt.Errorf("profile name %q contains %q: only [a-z0-9_-] allowed", name, c)
		}
	}
	return nil
}
