package replay

// Virtualize maps a path of a program to the namespace of the kernel, where
// the image is mounted at mountPoint. The result is NUL-terminated.
//
// The mapping is a plain concatenation: dot-dot elements and repeated slashes
// are left for the kernel to interpret. Distinct paths therefore always map to
// distinct results for a given mount point.
func Virtualize(mountPoint, path string) []byte {
	b := make([]byte, 0, len(mountPoint)+len(path)+1)
	b = append(b, mountPoint...)
	b = append(b, path...)
	return append(b, 0)
}
