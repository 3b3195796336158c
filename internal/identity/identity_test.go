package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValidRoster(t *testing.T) {
	data := []byte(`{
		"users": [
			{"display_name": "John Doe", "aliases": ["jdoe", "Johnny"]},
			{"display_name": "Grace Hopper"}
		]
	}`)

	roster, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, roster.Users, 2)
	assert.Equal(t, []string{"John Doe", "Grace Hopper", "jdoe", "Johnny"}, roster.Variants())
}

func TestParseRejectsInvalidRoster(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing users", `{}`},
		{"empty users", `{"users": []}`},
		{"missing display name", `{"users": [{"aliases": ["x"]}]}`},
		{"empty display name", `{"users": [{"display_name": ""}]}`},
		{"unknown field", `{"users": [{"display_name": "A", "email": "a@b.c"}]}`},
		{"not json", `nonsense{`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users":[{"display_name":"Ada"}]}`), 0640))

	roster, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada"}, roster.Variants())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
