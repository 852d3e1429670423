package factory

import (
	"testing"
)

func TestSQLiteDSNs(t *testing.T) {
	for _, dsn := range []string{"sqlite://:memory:", ":memory:"} {
		sink, err := NewSinkFromDSN(dsn)
		if err != nil {
			t.Fatalf("%q: %v", dsn, err)
		}
		if sink == nil {
			t.Fatalf("%q returned nil sink", dsn)
		}
	}
}

func TestOpenSearchDSN(t *testing.T) {
	// constructing the sink performs no network I/O
	sink, err := NewSinkFromDSN("opensearch://search.internal:9200/audit")
	if err != nil {
		t.Fatalf("opensearch dsn: %v", err)
	}
	if sink == nil {
		t.Fatalf("nil sink")
	}
	if _, err := NewSinkFromDSN("opensearch://"); err == nil {
		t.Fatalf("hostless opensearch dsn accepted")
	}
}

func TestRejectedDSNs(t *testing.T) {
	for _, dsn := range []string{"", "   ", "bogus://x", "redis://localhost:6379"} {
		if _, err := NewSinkFromDSN(dsn); err == nil {
			t.Fatalf("%q accepted", dsn)
		}
	}
}
