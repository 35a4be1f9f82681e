package dialect

import (
	"dwh/internal/ddl"
	jsonparser "dwh/internal/parser/json"
)

// TimeFormatEpochMillis interprets timestamp fields as milliseconds since
// the Unix epoch.
const TimeFormatEpochMillis = jsonparser.EpochMillis

// CopySpec describes one bulk load of JSON objects into a staging table.
type CopySpec struct {
	Table ddl.TableDef
	// Source is the object-storage location (bucket prefix or path).
	Source string
	// JSONPaths is the location of a JSONPaths document, or "auto".
	JSONPaths string
	// Mapping is the parsed JSONPaths document, for engines that need the
	// paths inline rather than by reference.
	Mapping jsonparser.Mapping
	// TimeFormat is empty or TimeFormatEpochMillis.
	TimeFormat string
	IAMRole    string
	Region     string
}

// Auto reports whether columns are matched to JSON keys by name.
func (s CopySpec) Auto() bool { return s.JSONPaths == "" || s.JSONPaths == "auto" }

// ServerCopier is implemented by engines that read object storage
// themselves. CopySQL renders the single statement performing the load.
type ServerCopier interface {
	CopySQL(spec CopySpec) (string, error)
}

// InlineMapper is implemented by ServerCopiers that take the parsed
// JSONPaths document in CopySpec.Mapping instead of its location.
type InlineMapper interface {
	InlineMapping() bool
}
