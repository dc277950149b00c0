package db

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var keywordDSN = regexp.MustCompile(`^[a-z_]+\s*=`)

// WithDBName returns dsn pointed at database. URL DSNs (postgres:// and
// postgresql://, scheme optional) get their path replaced; keyword/value
// DSNs get their dbname set.
func WithDBName(dsn, database string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", errors.New("empty DSN")
	}
	database = strings.TrimPrefix(database, "/")
	if database == "" {
		return "", errors.New("empty database name")
	}
	if !strings.Contains(dsn, "://") && keywordDSN.MatchString(dsn) {
		return withKeywordDBName(dsn, database), nil
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + database
	u.RawPath = ""
	return u.String(), nil
}

func withKeywordDBName(dsn, database string) string {
	fields := strings.Fields(dsn)
	out := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		if strings.HasPrefix(f, "dbname=") {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(append(out, "dbname="+database), " ")
}
