package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrograms_Match(t *testing.T) {
	p, err := NewPrograms(time.Minute)
	require.NoError(t, err)

	row := map[string]any{"title": "Fish", "stars": int64(4), "notes": nil}

	tests := []struct {
		expr string
		want bool
	}{
		{`e.title.startsWith("F")`, true},
		{`e.title.startsWith("B")`, false},
		{`e.stars >= 4`, true},
		{`e.notes == null`, true},
		{`e.title == "Fish" && e.stars < 3`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := p.Match(tt.expr, row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, len(tests), p.Len())
}

func TestPrograms_CachesCompiled(t *testing.T) {
	p, err := NewPrograms(time.Minute)
	require.NoError(t, err)

	_, err = p.Program(`e.stars > 1`)
	require.NoError(t, err)
	_, err = p.Program(`e.stars > 1`)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
}

func TestPrograms_Errors(t *testing.T) {
	p, err := NewPrograms(time.Minute)
	require.NoError(t, err)

	_, err = p.Match(`e.title.startsWith(`, map[string]any{})
	assert.Error(t, err)

	_, err = p.Match(`e.title`, map[string]any{"title": "Fish"})
	assert.Error(t, err)
}
