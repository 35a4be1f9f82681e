// Package config defines the JSON-serializable configuration model for a
// warehouse run, plus loaders for the legacy INI file and environment
// overrides.
//
// Example (trimmed):
//
//	{
//	  "job": "songplays_dwh",
//	  "warehouse": { "kind": "redshift", "host": "...", "port": 5439, "database": "dev" },
//	  "sources": {
//	    "log_data": "s3://udacity-dend/log_data",
//	    "log_jsonpath": "s3://udacity-dend/log_json_path.json",
//	    "song_data": "s3://udacity-dend/song_data",
//	    "iam_role_arn": "arn:aws:iam::123456789012:role/dwhRole",
//	    "region": "us-west-2"
//	  },
//	  "runtime": { "batch_size": 5000 }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

// Pipeline is the top-level object decoded from a config file such as
// configs/dwh.json.
type Pipeline struct {
	// Job names the run in logs and metrics.
	Job string `json:"job"`

	Warehouse  Warehouse  `json:"warehouse"`
	Sources    Sources    `json:"sources"`
	S3         S3         `json:"s3"`
	Runtime    Runtime    `json:"runtime"`
	Validation Validation `json:"validation"`
}

// Warehouse selects the backend and how to reach it. DSN, when set, wins over
// the individual connection fields.
type Warehouse struct {
	// Kind is one of "redshift", "postgres", "mssql", "mysql", "sqlite",
	// "duckdb".
	Kind     string `json:"kind"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
	SSLMode  string `json:"sslmode"`
	DSN      string `json:"dsn"`

	// Options is a backend-specific bag, e.g. sqlite "pragmas" or duckdb
	// "settings".
	Options Options `json:"options"`
}

// ConnString returns the DSN to open. For the server kinds it is built from
// the connection fields when DSN is empty; file-based kinds use Database as
// the path.
func (w Warehouse) ConnString() string {
	if w.DSN != "" {
		return w.DSN
	}
	switch w.Kind {
	case "redshift", "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(w.User, w.Password),
			Host:   w.Host,
			Path:   "/" + w.Database,
		}
		if w.Port > 0 {
			u.Host = w.Host + ":" + strconv.Itoa(w.Port)
		}
		if w.SSLMode != "" {
			u.RawQuery = url.Values{"sslmode": {w.SSLMode}}.Encode()
		}
		return u.String()
	case "mssql":
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(w.User, w.Password),
			Host:     w.hostPort(),
			RawQuery: url.Values{"database": {w.Database}}.Encode(),
		}
		return u.String()
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = w.User
		mc.Passwd = w.Password
		mc.Net = "tcp"
		mc.Addr = w.hostPort()
		mc.DBName = w.Database
		return mc.FormatDSN()
	default:
		return w.Database
	}
}

func (w Warehouse) hostPort() string {
	if w.Port > 0 {
		return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
	}
	return w.Host
}

// Sources locates the raw datasets. Locations are s3:// URIs, file:// URIs or
// plain local paths.
type Sources struct {
	LogData string `json:"log_data"`
	// LogJSONPath is a JSONPaths document location, or "auto".
	LogJSONPath string `json:"log_jsonpath"`
	SongData    string `json:"song_data"`
	// SongJSONPath defaults to "auto".
	SongJSONPath string `json:"song_jsonpath"`
	IAMRoleARN   string `json:"iam_role_arn"`
	Region       string `json:"region"`
}

// S3 configures object storage access for client-side reads and the DuckDB
// secret. Empty keys mean the default AWS credential chain.
type S3 struct {
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
	UsePathStyle    bool   `json:"use_path_style"`
}

// Runtime controls client-side load batching.
type Runtime struct {
	BatchSize     int `json:"batch_size"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Validation holds the lookup values used by the analytics queries.
type Validation struct {
	SongTitle     string `json:"song_title"`
	UserFirstName string `json:"user_first_name"`
}

// Defaults used when a field is left empty.
const (
	DefaultBatchSize     = 5000
	DefaultChannelBuffer = 1000
	DefaultSongTitle     = "Setanta matins"
	DefaultUserFirstName = "Aleena"
	DefaultJSONPaths     = "auto"
)

// ApplyDefaults fills zero-valued fields.
func (p *Pipeline) ApplyDefaults() {
	if p.Job == "" {
		p.Job = "dwh"
	}
	if p.Warehouse.Port == 0 {
		switch p.Warehouse.Kind {
		case "redshift":
			p.Warehouse.Port = 5439
		case "postgres":
			p.Warehouse.Port = 5432
		case "mssql":
			p.Warehouse.Port = 1433
		case "mysql":
			p.Warehouse.Port = 3306
		}
	}
	if p.Sources.LogJSONPath == "" {
		p.Sources.LogJSONPath = DefaultJSONPaths
	}
	if p.Sources.SongJSONPath == "" {
		p.Sources.SongJSONPath = DefaultJSONPaths
	}
	if p.Runtime.BatchSize <= 0 {
		p.Runtime.BatchSize = DefaultBatchSize
	}
	if p.Runtime.ChannelBuffer <= 0 {
		p.Runtime.ChannelBuffer = DefaultChannelBuffer
	}
	if p.Validation.SongTitle == "" {
		p.Validation.SongTitle = DefaultSongTitle
	}
	if p.Validation.UserFirstName == "" {
		p.Validation.UserFirstName = DefaultUserFirstName
	}
}

// String redacts secrets so a Pipeline can be logged.
func (p Pipeline) String() string {
	c := p
	if c.Warehouse.Password != "" {
		c.Warehouse.Password = "***"
	}
	if c.Warehouse.DSN != "" {
		c.Warehouse.DSN = redactDSN(c.Warehouse.Kind, c.Warehouse.DSN)
	}
	if c.S3.SecretAccessKey != "" {
		c.S3.SecretAccessKey = "***"
	}
	if c.S3.SessionToken != "" {
		c.S3.SessionToken = "***"
	}
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config.Pipeline{job=%q}", p.Job)
	}
	return string(b)
}

var dsnPassword = regexp.MustCompile(`(?i)\b(password|pwd)\s*=\s*[^;\s]*`)

// redactDSN masks the password of a URL, go-sql-driver or key/value DSN.
func redactDSN(kind, dsn string) string {
	if kind == "mysql" {
		if mc, err := mysql.ParseDSN(dsn); err == nil {
			if mc.Passwd != "" {
				mc.Passwd = "***"
			}
			return mc.FormatDSN()
		}
	}
	if masked := dsnPassword.ReplaceAllString(dsn, "$1=***"); masked != dsn {
		return masked
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// Options is a backend-specific settings bag with typed accessors. Each
// accessor returns def when the key is absent or holds another type.
type Options map[string]any

func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

func (o Options) Bool(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

// Int accepts float64 because encoding/json decodes numbers that way.
func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}

// StringSlice returns the string elements of an array value, skipping
// anything else, or nil when key is not an array.
func (o Options) StringSlice(key string) []string {
	switch vv := o[key].(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vv
	}
	return nil
}

// UnmarshalJSON decodes a missing or null object into an empty, non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
