package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FuzzLoadEnvFile feeds arbitrary bytes through the .env parser and
// ensures it never panics and never produces empty keys.
func FuzzLoadEnvFile(f *testing.F) {
	f.Add([]byte("A=1\n# note\nB=two\n"))
	f.Add([]byte("=nokey\nnovalue\n  SPACED = v \n"))
	f.Add([]byte{0xff, 0xfe, '=', 'x'})

	f.Fuzz(func(t *testing.T, data []byte) {
		p := filepath.Join(t.TempDir(), "fuzz.env")
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Skip()
		}
		m, err := loadEnvFile(p)
		if err != nil {
			return
		}
		for k := range m {
			if strings.TrimSpace(k) == "" {
				t.Fatalf("empty key parsed from %q", data)
			}
		}
	})
}
