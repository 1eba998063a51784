package story

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoryState_NormalizeMarshalsEmptyLists(t *testing.T) {
	data, err := json.Marshal(StoryState{Summary: "s"}.Normalize())
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"s","characters":[],"items":[]}`, string(data))
}

func TestStoryState_CloneIsDeep(t *testing.T) {
	orig := StoryState{Characters: []Entity{{Name: "艾琳"}}, Items: []Entity{{Name: "霜语"}}}
	clone := orig.Clone()
	clone.Characters[0].Name = "x"
	clone.Items = append(clone.Items, Entity{})

	assert.Equal(t, "艾琳", orig.Characters[0].Name)
	assert.Len(t, orig.Items, 1)
	assert.Nil(t, StoryState{}.Clone().Characters)
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, "https://api.openai.com", s.APIURL)
	assert.Empty(t, s.APIKey)
	assert.Equal(t, "gpt-3.5-turbo", s.Model)
	assert.Equal(t, 5, s.UpdateInterval)
	assert.Equal(t, DefaultSystemPrompt, s.SystemPrompt)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"updateInterval":5`)
	assert.Contains(t, string(data), `"apiUrl":"https://api.openai.com"`)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "generating", StatusGenerating.String())
}
