package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/ochairo/carbonrepo/internal/domain/errors"
)

func TestFormatRepoName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SM-BetterChat", "Better Chat"},
		{"SMPublicAPI", "Public API"},
		{"my_cool-mod", "My Cool Mod"},
		{"ChatAPI", "Chat API"},
		{"simple", "Simple"},
		{"mod2d", "Mod2D"},
		{"  spaced__out  ", "Spaced Out"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRepoName(tt.in))
		})
	}
}

func TestParseRepoInput(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"owner/name", "owner/name", false},
		{" owner/name.go ", "owner/name.go", false},
		{"https://github.com/owner/name", "owner/name", false},
		{"https://github.com/owner/name/releases/tag/v1", "owner/name", false},
		{"http://github.com/owner/name.git", "owner/name", false},
		{"https://gitlab.com/owner/name", "", true},
		{"owner", "", true},
		{"owner/name/extra", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRepoInput(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domainerrors.Is(err, domainerrors.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
