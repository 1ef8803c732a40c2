// Package partname validates partition names. It is a pure predicate: no
// allocation, no I/O.
package partname

// MaxLen is the longest legal partition name, in bytes.
const MaxLen = 255

// Valid reports whether name is 1..=255 bytes long and every byte is one
// of [a-zA-Z0-9_-.#].
func Valid(name string) bool {
	if len(name) == 0 || len(name) > MaxLen {
		return false
	}

	for i := 0; i < len(name); i++ {
		if !isValidByte(name[i]) {
			return false
		}
	}

	return true
}

func isValidByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '.' || c == '#':
		return true
	default:
		return false
	}
}
