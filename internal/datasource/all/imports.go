// Package all links the built-in object stores ("file", "s3", "http",
// "https") into the datasource registry.
package all

import (
	_ "dwh/internal/datasource/file"
	_ "dwh/internal/datasource/httpds"
	_ "dwh/internal/datasource/s3store"
)
