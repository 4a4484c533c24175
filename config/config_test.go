package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UPSTREAM_API_URL", "http://backend.test/api/")
	t.Setenv("STUDENT_FALLBACK_METHODS", "Efectivo, Yape ,")
	t.Setenv("BULK_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Upstream.APIURL != "http://backend.test/api" {
		t.Errorf("APIURL = %q, want trailing slash trimmed", cfg.Upstream.APIURL)
	}
	if want := []string{"Efectivo", "Yape"}; !reflect.DeepEqual(cfg.Payments.StudentFallbackMethods, want) {
		t.Errorf("StudentFallbackMethods = %v, want %v", cfg.Payments.StudentFallbackMethods, want)
	}
	if cfg.Bulk.Concurrency != 8 {
		t.Errorf("Bulk.Concurrency = %d, want fallback 8", cfg.Bulk.Concurrency)
	}
	if cfg.Attendance.RecentLimit != 10 {
		t.Errorf("RecentLimit = %d, want 10", cfg.Attendance.RecentLimit)
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{name: "url wins", cfg: DatabaseConfig{URL: "postgres://x/y", Host: "h"}, want: "postgres://x/y"},
		{
			name: "components",
			cfg:  DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"},
			want: "postgres://u:p@h:5432/d?sslmode=disable",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.DSN(); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpstreamTimeout(t *testing.T) {
	if got := (UpstreamConfig{}).Timeout(); got != 10*time.Second {
		t.Errorf("Timeout() = %v, want 10s", got)
	}
	if got := (UpstreamConfig{TimeoutSec: 3}).Timeout(); got != 3*time.Second {
		t.Errorf("Timeout() = %v, want 3s", got)
	}
}
