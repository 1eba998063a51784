package api

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xchovs/story-tracker/internal/story"
)

func TestEditEchoes(t *testing.T) {
	echoes := newEditEchoes()
	a := story.StoryState{Summary: "夜"}
	b := story.StoryState{Summary: "夜色"}

	echoes.record(1, "tab-1", a)
	echoes.record(1, "tab-2", b)

	// 写入顺序与提交顺序无关
	client, ok := echoes.match(1, b.Normalize())
	assert.True(t, ok)
	assert.Equal(t, "tab-2", client)

	_, ok = echoes.match(2, a)
	assert.False(t, ok)

	client, ok = echoes.match(1, a)
	assert.True(t, ok)
	assert.Equal(t, "tab-1", client)

	_, ok = echoes.match(1, a)
	assert.False(t, ok)
	assert.Empty(t, echoes.pending)

	for i := 0; i < maxPendingEdits+5; i++ {
		echoes.record(1, "tab-1", a)
	}
	assert.Len(t, echoes.pending[1], maxPendingEdits)
}
