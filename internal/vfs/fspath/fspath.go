// Package fspath is similar to the standard path package but provides functions
// that are more useful for path manipulation in the presence of symbolic links.
//
// None of the functions collapse ".." elements: a parent reference can only be
// resolved once the symbolic links leading to it are known.
package fspath

// Join joins two paths with a single separator, leaving parent directory
// references in place.
func Join(dir, name string) string {
	buf := make([]byte, 0, len(dir)+len(name)+1)
	buf = AppendClean(buf, dir)
	if name = TrimLeadingSlash(name); name != "" {
		if !HasTrailingSlash(string(buf)) {
			buf = append(buf, '/')
		}
		buf = AppendClean(buf, name)
	}
	return string(buf)
}

// Clean is like path.Clean but it preserves parent directory references.
func Clean(path string) string {
	return string(AppendClean(make([]byte, 0, len(path)), path))
}

// AppendClean is like Clean but it appends the result to the byte slice passed
// as first argument. Empty and "." elements are removed, repeated slashes are
// squashed, and a trailing slash is preserved.
func AppendClean(buf []byte, path string) []byte {
	if len(path) == 0 {
		return buf
	}

	type region struct {
		off, end int
	}

	elems := make([]region, 0, 16)
	if IsAbs(path) {
		elems = append(elems, region{})
	}

	i := 0
	for {
		for i < len(path) && path[i] == '/' {
			i++
		}
		if i == len(path) {
			break
		}
		j := i
		for j < len(path) && path[j] != '/' {
			j++
		}
		if path[i:j] != "." {
			elems = append(elems, region{off: i, end: j})
		}
		i = j
	}

	if len(elems) == 0 {
		return append(buf, '.')
	}
	if len(elems) == 1 && elems[0] == (region{}) {
		return append(buf, '/')
	}
	for i, elem := range elems {
		if i != 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, path[elem.off:elem.end]...)
	}
	if HasTrailingSlash(path) {
		buf = append(buf, '/')
	}
	return buf
}

// Walk separates the first element of a relative path from the rest. Leading
// slashes of the remainder are trimmed.
func Walk(path string) (elem, rest string) {
	path = TrimLeadingSlash(path)
	i := IndexSlash(path)
	if i < 0 {
		return path, ""
	}
	return path[:i], TrimLeadingSlash(path[i:])
}

// Split separates the last element of a path from its directory. The directory
// is "." when the path has a single relative element and "/" when the element
// is at the root.
func Split(path string) (dir, base string) {
	trimmed := TrimTrailingSlash(path)
	if trimmed == "" && IsAbs(path) {
		return "/", ""
	}
	i := len(trimmed) - 1
	for i >= 0 && trimmed[i] != '/' {
		i--
	}
	if i < 0 {
		return ".", trimmed
	}
	if dir = TrimTrailingSlash(trimmed[:i]); dir == "" {
		dir = "/"
	}
	return dir, trimmed[i+1:]
}

// IndexSlash is like strings.IndexByte(path, '/') but the function is simple
// enough to be inlined.
func IndexSlash(path string) int {
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return i
		}
	}
	return -1
}

func HasTrailingSlash(s string) bool {
	return len(s) > 0 && s[len(s)-1] == '/'
}

func TrimLeadingSlash(s string) string {
	i := 0
	for i < len(s) && s[i] == '/' {
		i++
	}
	return s[i:]
}

func TrimTrailingSlash(s string) string {
	i := len(s)
	for i > 0 && s[i-1] == '/' {
		i--
	}
	return s[:i]
}

func IsAbs(path string) bool {
	return len(path) > 0 && path[0] == '/'
}

// IsRoot reports whether path designates the root of a file system.
func IsRoot(path string) bool {
	return TrimLeadingSlash(path) == "" || Clean(path) == "/" || Clean(path) == "."
}
