package api

import (
	"reflect"
	"sync"

	"github.com/xchovs/story-tracker/internal/story"
)

const (
	// PanelClientHeader 面板异步编辑时携带的页面标识
	PanelClientHeader = "X-Panel-Client"

	maxPendingEdits = 32
)

type pendingEdit struct {
	client string
	state  story.StoryState
}

// editEchoes 记录面板自己提交的编辑，广播时标出来源，来源页面据此不再重载
type editEchoes struct {
	mu      sync.Mutex
	pending map[int64][]pendingEdit
}

func newEditEchoes() *editEchoes {
	return &editEchoes{pending: make(map[int64][]pendingEdit)}
}

func (e *editEchoes) record(chatID int64, client string, state story.StoryState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	edits := append(e.pending[chatID], pendingEdit{client: client, state: state.Normalize()})
	if len(edits) > maxPendingEdits {
		edits = edits[len(edits)-maxPendingEdits:]
	}
	e.pending[chatID] = edits
}

// match 找到与写入内容一致的编辑并移除，返回其来源
func (e *editEchoes) match(chatID int64, state story.StoryState) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	edits := e.pending[chatID]
	state = state.Normalize()
	for i, edit := range edits {
		if !reflect.DeepEqual(edit.state, state) {
			continue
		}
		edits = append(edits[:i:i], edits[i+1:]...)
		if len(edits) == 0 {
			delete(e.pending, chatID)
		} else {
			e.pending[chatID] = edits
		}
		return edit.client, true
	}
	return "", false
}
