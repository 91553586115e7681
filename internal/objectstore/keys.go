package objectstore

import "strings"

// DeriveKey maps a local file path onto its object key by stripping every
// leading slash. It is idempotent.
func DeriveKey(localPath string) string {
	return strings.TrimLeft(localPath, "/")
}
