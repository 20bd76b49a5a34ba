package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnConflictStatement(t *testing.T) {
	tests := []struct {
		name string
		cols []string
		want string
	}{
		{
			name: "updates non-key columns",
			cols: []string{"points", "user_id"},
			want: `INSERT INTO "scores" ("points", "user_id") VALUES ($1, $2) ON CONFLICT ("user_id") DO UPDATE SET "points" = EXCLUDED."points"`,
		},
		{
			name: "key only",
			cols: []string{"user_id"},
			want: `INSERT INTO "scores" ("user_id") VALUES ($1) ON CONFLICT ("user_id") DO NOTHING`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, onConflictStatement(`"scores"`, tt.cols, "user_id"))
		})
	}
}
