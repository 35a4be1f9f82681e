package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
)

// Load decodes a JSON pipeline file. Unknown fields are rejected so typos
// surface early.
func Load(path string) (Pipeline, error) {
	var p Pipeline
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return p, nil
}

// LoadINI reads the legacy dwh.cfg layout:
//
//	[CLUSTER]  HOST DB_NAME DB_USER DB_PASSWORD DB_PORT
//	[IAM_ROLE] ARN
//	[S3]       LOG_DATA LOG_JSONPATH SONG_DATA [REGION]
//	[AWS]      KEY SECRET (optional)
//
// Section and key names are case-insensitive and values may be quoted. The
// warehouse kind is always redshift.
func LoadINI(path string) (Pipeline, error) {
	var p Pipeline
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return p, fmt.Errorf("config: read %s: %w", path, err)
	}
	get := func(section, key string) string {
		return unquote(f.Section(section).Key(key).String())
	}

	p.Warehouse = Warehouse{
		Kind:     "redshift",
		Host:     get("cluster", "host"),
		Database: get("cluster", "db_name"),
		User:     get("cluster", "db_user"),
		Password: get("cluster", "db_password"),
	}
	if port := get("cluster", "db_port"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return p, fmt.Errorf("config: %s: CLUSTER.DB_PORT %q is not a number", path, port)
		}
		p.Warehouse.Port = n
	}
	p.Sources = Sources{
		LogData:     get("s3", "log_data"),
		LogJSONPath: get("s3", "log_jsonpath"),
		SongData:    get("s3", "song_data"),
		IAMRoleARN:  get("iam_role", "arn"),
		Region:      get("s3", "region"),
	}
	p.S3 = S3{
		AccessKeyID:     get("aws", "key"),
		SecretAccessKey: get("aws", "secret"),
	}
	return p, nil
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from environment variables. Only variables that
// are set and non-empty take effect.
func ApplyEnv(p *Pipeline, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DWH_KIND", &p.Warehouse.Kind)
	str("DWH_HOST", &p.Warehouse.Host)
	str("DWH_DB", &p.Warehouse.Database)
	str("DWH_USER", &p.Warehouse.User)
	str("DWH_PASSWORD", &p.Warehouse.Password)
	str("DWH_DSN", &p.Warehouse.DSN)
	str("DWH_IAM_ROLE_ARN", &p.Sources.IAMRoleARN)
	str("AWS_REGION", &p.Sources.Region)
	str("S3_ENDPOINT", &p.S3.Endpoint)
	str("S3_ACCESS_KEY_ID", &p.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &p.S3.SecretAccessKey)

	if v, ok := lookup("DWH_PORT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: DWH_PORT %q is not a number", v)
		}
		p.Warehouse.Port = n
	}
	return nil
}
