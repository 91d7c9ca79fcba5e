package main

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestParseOptions(t *testing.T) {
	const dsn = "postgres://localhost/promptpix"

	tests := []struct {
		name    string
		args    []string
		envDSN  string
		wantErr string
		want    options
	}{
		{
			name:   "grant by email",
			args:   []string{"-email", "ada@example.com", "-amount", "50"},
			envDSN: dsn,
			want:   options{databaseURL: dsn, email: "ada@example.com", amount: 50, format: "plain"},
		},
		{
			name:   "clawback as json",
			args:   []string{"-user-id", "01J0", "-amount", "-5", "-format", "JSON"},
			envDSN: dsn,
			want:   options{databaseURL: dsn, userID: "01J0", amount: -5, format: "json"},
		},
		{
			name:    "unknown format rejected",
			args:    []string{"-user-id", "01J0", "-amount", "5", "-format", "yaml"},
			envDSN:  dsn,
			wantErr: "invalid format",
		},
		{
			name:    "missing database",
			args:    []string{"-user-id", "01J0", "-amount", "5"},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "missing user",
			args:    []string{"-amount", "5"},
			envDSN:  dsn,
			wantErr: "-user-id or -email",
		},
		{
			name:    "zero amount",
			args:    []string{"-user-id", "01J0"},
			envDSN:  dsn,
			wantErr: "non-zero",
		},
		{
			name:    "unknown flag",
			args:    []string{"-user-id", "01J0", "-amount", "5", "-dry-run"},
			envDSN:  dsn,
			wantErr: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOptions(tt.args, tt.envDSN, io.Discard)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOptions: %v", err)
			}
			if got != tt.want {
				t.Errorf("options = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWriteOutput(t *testing.T) {
	out := output{UserID: "01J0", Email: "ada@example.com", Granted: 50, Balance: 55}

	var plain bytes.Buffer
	if err := writeOutput(&plain, "plain", out); err != nil {
		t.Fatal(err)
	}
	if plain.String() != "55\n" {
		t.Errorf("plain output = %q", plain.String())
	}

	var js bytes.Buffer
	if err := writeOutput(&js, "json", out); err != nil {
		t.Fatal(err)
	}
	var decoded output
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("json output %q: %v", js.String(), err)
	}
	if decoded != out {
		t.Errorf("decoded = %+v, want %+v", decoded, out)
	}
}
