package l5decision

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"FIND_WALL", ModeFindWall},
		{"follow_wall", ModeFollowWall},
		{"Lost Wall", ModeLostWall},
		{"disrupted-path", ModeDisruptedPath},
		{" stuck ", ModeStuck},
		{"ROCK_APPROACH", ModeRockApproach},
		{"error", ModeError},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMode("hover")
	assert.Error(t, err)
}

func TestMode_StringRoundTrip(t *testing.T) {
	require.Len(t, Modes(), len(modeNames))
	for _, m := range Modes() {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	assert.Equal(t, "Mode(42)", Mode(42).String())
}

func TestMode_JSON(t *testing.T) {
	b, err := json.Marshal(Command{Mode: ModeRockApproach})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"mode":"ROCK_APPROACH"`)

	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"STUCK"}`), &cmd))
	assert.Equal(t, ModeStuck, cmd.Mode)
}

func TestStateModes(t *testing.T) {
	states := map[State]Mode{
		FindWall{}:      ModeFindWall,
		FollowWall{}:    ModeFollowWall,
		LostWall{}:      ModeLostWall,
		DisruptedPath{}: ModeDisruptedPath,
		Stuck{}:         ModeStuck,
		RockApproach{}:  ModeRockApproach,
		Error{}:         ModeError,
	}
	for s, want := range states {
		assert.Equal(t, want, s.Mode(), "%T", s)
	}
}
