package practicecode

import (
	"testing"
)

func TestResolveStore_KnownKinds(t *testing.T) {
	cases := []struct {
		in   string
		want StoreKind
	}{
		{"file", StoreFile},
		{"JSON", StoreFile},
		{" sql ", StoreSQL},
		{"Database", StoreSQL},
		{"redis", StoreRedis},
		{"VALKEY", StoreRedis},
		{"db", StoreSQL},
		{" file", StoreFile},
	}
	for _, c := range cases {
		got, err := ResolveStore(c.in)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("expected %s got %s (config %q)", c.want, got, c.in)
		}
	}
}

func TestResolveStore_InvalidName(t *testing.T) {
	if _, err := ResolveStore("etcd"); err == nil {
		t.Fatalf("expected error for invalid name")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]Dialect{
		"postgres": DialectPostgres,
		"pq":       DialectPostgres,
		"MySQL":    DialectMySQL,
		"mariadb":  DialectMySQL,
		"sqlite3":  DialectSQLite,
	}
	for in, want := range cases {
		got, err := DialectForDriver(in)
		if err != nil || got != want {
			t.Fatalf("DialectForDriver(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := DialectForDriver("oracle"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
