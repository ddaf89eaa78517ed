package coach

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-coach/pkg/state"
)

func TestResolve(t *testing.T) {
	cat := DefaultCatalogue()

	tests := []struct {
		name    string
		in      state.Options
		want    state.Options
		wantErr bool
	}{
		{
			name: "defaults",
			in:   state.Options{},
			want: state.Options{Role: "software_engineer", Difficulty: "medium", Mode: "behavioral"},
		},
		{
			name: "explicit",
			in:   state.Options{Role: "designer", Difficulty: "easy", Mode: "system_design"},
			want: state.Options{Role: "designer", Difficulty: "easy", Mode: "system_design"},
		},
		{
			name: "partial",
			in:   state.Options{Mode: "technical"},
			want: state.Options{Role: "software_engineer", Difficulty: "medium", Mode: "technical"},
		},
		{name: "bad role", in: state.Options{Role: "pilot"}, wantErr: true},
		{name: "bad difficulty", in: state.Options{Difficulty: "insane"}, wantErr: true},
		{name: "bad mode", in: state.Options{Mode: "trivia"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cat.Resolve(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSystemPrompt(t *testing.T) {
	cat := DefaultCatalogue()
	p := cat.SystemPrompt(state.Options{Role: "data_scientist", Difficulty: "easy", Mode: "behavioral"})

	assert.True(t, strings.HasPrefix(p, "Interview settings:\n"))
	assert.Contains(t, p, "- Role: Data Scientist\n")
	assert.Contains(t, p, "- Difficulty: Easy\n")
	assert.Contains(t, p, "- Interview type: Behavioral\n")
	assert.True(t, strings.HasSuffix(p, BasePrompt))
	assert.Contains(t, p, "update_ui")
}

func TestLabelFallsBackToID(t *testing.T) {
	cat := DefaultCatalogue()
	assert.Equal(t, "Product Designer", Label(cat.Roles, "designer"))
	assert.Equal(t, "unknown", Label(cat.Roles, "unknown"))
}
