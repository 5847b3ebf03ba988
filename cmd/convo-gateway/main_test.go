// ABOUTME: Tests for CLI argument parsing
// ABOUTME: Covers value flags, boolean flags and error cases

package main

import (
	"testing"
)

func TestParseFlags(t *testing.T) {
	known := map[string]bool{"username": true, "password": true, "superuser": false}

	tests := []struct {
		name    string
		args    []string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "space separated",
			args: []string{"--username", "alice", "--password", "pw"},
			want: map[string]string{"username": "alice", "password": "pw"},
		},
		{
			name: "equals form",
			args: []string{"--username=alice", "--password=a=b"},
			want: map[string]string{"username": "alice", "password": "a=b"},
		},
		{
			name: "boolean flag",
			args: []string{"--superuser", "--username", "root"},
			want: map[string]string{"superuser": "true", "username": "root"},
		},
		{name: "missing value", args: []string{"--username"}, wantErr: true},
		{name: "unknown flag", args: []string{"--name", "x"}, wantErr: true},
		{name: "positional", args: []string{"alice"}, wantErr: true},
		{name: "boolean with value", args: []string{"--superuser=yes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, known)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseFlags(%v) error = nil, want error", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFlags(%v) error = %v", tt.args, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseFlags(%v) = %v, want %v", tt.args, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("flag %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
