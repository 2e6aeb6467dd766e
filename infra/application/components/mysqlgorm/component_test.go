package mysqlgorm

import (
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestBuildDSNFromPieces(t *testing.T) {
	dsn, err := buildDSN(&DataSourceConfig{
		Host: "db", User: "delegate", Password: "p@ss", Database: "dispatch",
		Params: map[string]string{"loc": "UTC"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	if parsed.Addr != "db:3306" || parsed.Passwd != "p@ss" || !parsed.ParseTime {
		t.Fatalf("unexpected config %+v", parsed)
	}
	if !strings.Contains(dsn, "charset=utf8mb4") {
		t.Fatalf("charset missing from %q", dsn)
	}
}

func TestBuildDSNRequiresPieces(t *testing.T) {
	if _, err := buildDSN(&DataSourceConfig{Host: "db"}); err == nil {
		t.Fatalf("expected error")
	}
}
