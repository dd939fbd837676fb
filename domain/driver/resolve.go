package driver

import "strings"

// DefaultDriverName is the generic name of the multiplexer binary itself.
// Invoking it as "multicall <tool> ..." selects the tool from the second
// argument.
const DefaultDriverName = "multicall"

// CleanToolName reduces an invocation name to the part used for matching:
// the final path element, without a trailing ".exe" (any case).
func CleanToolName(name string) string {
	return trimExe(baseName(name))
}

// Resolve finds the registered tool that best describes name.
//
// Every registered name is searched for case-insensitively in the cleaned
// name, using its rightmost occurrence. An occurrence only counts when it sits
// on word boundaries: the bytes directly before and after it are either the
// edge of the string or not ASCII alphanumeric. The longest accepted name wins;
// on equal length the entry registered first wins.
//
// For example "i386-clang++-15" resolves to "clang", and "x86_64-clang-cl-18"
// resolves to "clang-cl" when both are registered, while "libclangd" matches
// neither.
func (r *Registry) Resolve(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}

	tool := CleanToolName(name)
	lower := asciiLower(tool)

	var best Entry
	found := false
	for _, e := range r.entries {
		if found && len(e.Name) <= len(best.Name) {
			continue
		}
		i := strings.LastIndex(lower, asciiLower(e.Name))
		if i < 0 {
			continue
		}
		if i > 0 && isAlnum(tool[i-1]) {
			continue
		}
		end := i + len(e.Name)
		if end < len(tool) && isAlnum(tool[end]) {
			continue
		}
		best = e
		found = true
	}
	return best, found
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func trimExe(name string) string {
	const ext = ".exe"
	if len(name) >= len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext) {
		return name[:len(name)-len(ext)]
	}
	return name
}

// asciiLower lowercases ASCII letters only so byte offsets stay aligned with
// the original string.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
