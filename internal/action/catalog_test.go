package action

import (
	"testing"

	"github.com/stretchr/testify/require"

	"oauthbridge.io/bridge/internal/config"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
)

func TestCatalog_Lookup(t *testing.T) {
	catalog, err := NewCatalog([]config.EntityConfig{
		{Name: "Score", Aliases: []string{`App\Models\Score`}, Table: "scores", Columns: []string{"user_id", "points"}},
		{Name: "Visit", Table: "visits", Columns: []string{"visitor", "at"}, Key: "visitor"},
	})
	require.NoError(t, err)

	for _, name := range []string{"Score", "score", " SCORE ", `\App\Models\Score`, `app\models\score`} {
		d, err := catalog.Lookup(name)
		require.NoError(t, err, name)
		require.Equal(t, "scores", d.Table)
		require.Equal(t, "user_id", d.Key)
	}

	d, err := catalog.Lookup("visit")
	require.NoError(t, err)
	require.Equal(t, "visitor", d.Key)
	require.True(t, d.HasColumn("at"))
	require.False(t, d.HasColumn("user_id"))

	_, err = catalog.Lookup("App\\Nope")
	require.True(t, apperrors.HasCode(err, apperrors.CodeUnknownEntityType))

	require.Equal(t, []string{"Score", "Visit"}, catalog.Names())
}

func TestCatalog_UniqueKey(t *testing.T) {
	c, err := NewCatalog([]config.EntityConfig{
		{Name: "Badge", Table: "badges", Columns: []string{"user_id", "level"}, UniqueKey: true},
		{Name: "Score", Table: "scores", Columns: []string{"user_id", "points"}},
	})
	require.NoError(t, err)

	badge, err := c.Lookup("badge")
	require.NoError(t, err)
	require.True(t, badge.UniqueKey)
	require.Equal(t, "user_id", badge.Key)

	score, err := c.Lookup("Score")
	require.NoError(t, err)
	require.False(t, score.UniqueKey)
}

func TestNewCatalog_Rejects(t *testing.T) {
	_, err := NewCatalog([]config.EntityConfig{
		{Name: "A", Table: "a", Columns: []string{"user_id"}},
		{Name: "B", Aliases: []string{"a"}, Table: "b", Columns: []string{"user_id"}},
	})
	require.Error(t, err)

	_, err = NewCatalog([]config.EntityConfig{{Name: "A", Table: "a b", Columns: []string{"user_id"}}})
	require.Error(t, err)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	require.NoError(t, err)
	require.Equal(t, ScopeEntitled, s)

	s, err = ParseScope("both")
	require.NoError(t, err)
	require.Equal(t, ScopeBoth, s)

	_, err = ParseScope("all")
	require.Error(t, err)
}
