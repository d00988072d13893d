package cmd

import (
	"os"
	"testing"
)

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"loopback with port", "127.0.0.1:8080", false},
		{"port only", ":8080", false},
		{"localhost", "localhost:3000", false},
		{"ipv6", "[::1]:8080", false},
		{"auto-assign port", "127.0.0.1:0", false},
		{"hostname", "fleetmech.internal:8080", false},
		{"missing port", "127.0.0.1", true},
		{"empty port", "127.0.0.1:", true},
		{"non-numeric port", "127.0.0.1:http", true},
		{"port out of range", "127.0.0.1:70000", true},
		{"whitespace host", "bad host:8080", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAddr(tt.addr)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAddr(%q) = %v, wantErr %v", tt.addr, err, tt.wantErr)
			}
		})
	}
}

func TestParseServeAddr(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default", []string{"fleetmech", "serve"}, "127.0.0.1:8080"},
		{"positional", []string{"fleetmech", "serve", ":9000"}, ":9000"},
		{"flag", []string{"fleetmech", "serve", "--addr", "0.0.0.0:9000"}, "0.0.0.0:9000"},
		{"single dash", []string{"fleetmech", "serve", "-addr", ":9000"}, ":9000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := os.Args
			os.Args = tt.args
			defer func() { os.Args = orig }()

			got, err := parseServeAddr()
			if err != nil {
				t.Fatalf("parseServeAddr() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("parseServeAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseServeAddr_Invalid(t *testing.T) {
	orig := os.Args
	os.Args = []string{"fleetmech", "serve", "no-port"}
	defer func() { os.Args = orig }()

	if _, err := parseServeAddr(); err == nil {
		t.Error("parseServeAddr() accepted an address without a port")
	}
}
