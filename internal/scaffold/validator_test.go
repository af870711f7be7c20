package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckExisting(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, dir string)
		wantErr string
	}{
		{
			name:  "no existing files",
			setup: func(t *testing.T, dir string) {},
		},
		{
			name: "existing tessera.yml only",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("version: '1.0'"), 0644))
			},
			wantErr: "Found existing: tessera.yml",
		},
		{
			name: "existing keys directory only",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.Mkdir(filepath.Join(dir, KeysDir), 0700))
			},
			wantErr: "Found existing: keys/",
		},
		{
			name: "both exist",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("version: '1.0'"), 0644))
				require.NoError(t, os.Mkdir(filepath.Join(dir, KeysDir), 0700))
			},
			wantErr: "  - keys/",
		},
		{
			name: "keys is a file, not a directory",
			setup: func(t *testing.T, dir string) {
				require.NoError(t, os.WriteFile(filepath.Join(dir, KeysDir), []byte("x"), 0644))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			err := CheckExisting(dir)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "tessera init --force")
		})
	}
}
