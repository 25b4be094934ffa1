package collabclient

import (
	"sync"
	"time"
)

type NoticeKind int

const (
	NoticeInfo NoticeKind = iota
	NoticeError
)

const (
	MsgAutosaved      = "Auto-saved"
	MsgAutosaveFailed = "Auto-save failed"
	MsgCreated        = "Document created successfully!"
	MsgSaved          = "Document saved successfully!"
	MsgSaveFailed     = "Save failed"
)

// Notice is a user-facing status line. A zero TTL makes it persistent: it
// stays until the next save attempt replaces or clears it.
type Notice struct {
	Kind    NoticeKind
	Message string
	TTL     time.Duration
}

func (n Notice) Persistent() bool { return n.TTL == 0 }

// noticeBoard holds the current notice and expires transient ones.
type noticeBoard struct {
	mu      sync.Mutex
	current *Notice
	gen     uint64
	timer   *time.Timer
}

func (b *noticeBoard) show(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	b.gen++
	b.current = &n
	if n.Persistent() {
		return
	}
	gen := b.gen
	b.timer = time.AfterFunc(n.TTL, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.gen == gen {
			b.current = nil
		}
	})
}

// clearPersistent drops a persistent notice; transient ones run out on their own.
func (b *noticeBoard) clearPersistent() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil && b.current.Persistent() {
		b.current = nil
		b.gen++
	}
}

func (b *noticeBoard) get() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Notice{}, false
	}
	return *b.current, true
}

func (b *noticeBoard) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
	b.current = nil
	b.gen++
}

func (b *noticeBoard) stopLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
