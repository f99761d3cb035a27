package scaffold

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckExisting(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		wantErr bool
		errMsg  []string
	}{
		{name: "no existing files"},
		{name: "existing tally.yml only", files: []string{ConfigFile}, wantErr: true, errMsg: []string{": tally.yml"}},
		{name: "existing seed only", files: []string{SeedFile}, wantErr: true, errMsg: []string{": inventory.yml"}},
		{
			name:    "both exist",
			files:   []string{ConfigFile, SeedFile},
			wantErr: true,
			errMsg:  []string{"  - tally.yml", "  - inventory.yml", "tally init --force"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for _, f := range tt.files {
				require.NoError(t, os.WriteFile(f, []byte("version: '1.0'"), 0644))
			}

			err := CheckExisting()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, msg := range tt.errMsg {
				assert.Contains(t, err.Error(), msg)
			}
		})
	}
}
