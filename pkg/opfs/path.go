package opfs

import (
	"strings"
)

// Virtualize normalizes a slash-delimited path into the segments which
// name it under the storage area root. A leading "/" roots the path, "."
// and empty components are dropped, and ".." is rejected: resolved paths
// never leave the storage area.
func Virtualize(path string) ([]string, error) {
	var out []string

	for i, component := range strings.Split(path, "/") {
		switch component {
		case "":
			if i == 0 {
				out = out[:0] // Rooted.
			}
		case ".":
		case "..":
			return nil, invalidInput("virtualize", "only normal path components are supported")
		default:
			out = append(out, component)
		}
	}
	return out, nil
}

// validSegment reports whether |name| may name a directory or file.
func validSegment(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}
