package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

var dbNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// EnsureNetworkDB makes sure the named network database exists on the cluster
// reachable through meta, creating it when missing. It returns the name.
func EnsureNetworkDB(ctx context.Context, meta *sql.DB, name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !dbNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid network database name %q", name)
	}
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`
	if err := meta.QueryRowContext(ctx, q, name).Scan(&exists); err != nil {
		return "", fmt.Errorf("lookup database %q: %w", name, err)
	}
	if exists {
		return name, nil
	}
	// CREATE DATABASE takes no bind parameters; name is validated above.
	if _, err := meta.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		return "", fmt.Errorf("create database %q: %w", name, err)
	}
	return name, nil
}
