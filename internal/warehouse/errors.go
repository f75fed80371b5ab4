package warehouse

import "strings"

// isMissingTable reports whether err is SQLite's "no such table". On a
// fresh warehouse not every fact table exists yet; readers treat that as
// an empty result instead of an error.
func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "no such table")
}

// IsMissingTable is the exported form for the read-side packages.
func IsMissingTable(err error) bool {
	return isMissingTable(err)
}
