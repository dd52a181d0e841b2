// Package store holds the concurrent in-memory registry of forum threads,
// their messages, and their uploaded-file records. It is the single piece
// of state shared across all client sessions.
//
// Locking discipline: the store mutex guards only the title index, so the
// title-existence check-and-act on create/remove is atomic. Every other
// operation takes the per-thread mutex, so operations on different threads
// proceed in parallel while operations on one thread are serialized.
//
// Message positions are contiguous 1..N at all times: deleting a message
// renumbers the ones after it. A stale position held by another client
// resolves to NotFound or to a different message, whose authorship check
// still applies.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"udpforum/internal/common"
)

// Message is one post within a thread.
type Message struct {
	Position int
	Author   string
	Body     string
	Edited   bool
}

// FileRecord describes a file uploaded to a thread.
type FileRecord struct {
	Name     string
	Uploader string
	Size     int64
}

// ThreadView is a point-in-time snapshot of a thread for rendering.
type ThreadView struct {
	Title    string
	Creator  string
	Messages []Message
	Files    []FileRecord
}

type thread struct {
	mu       sync.Mutex
	creator  string
	removed  bool
	messages []Message
	files    []FileRecord
}

// Store is the registry. The zero value is not usable; construct with New.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*thread
}

func New() *Store {
	return &Store{threads: make(map[string]*thread)}
}

// get looks up the thread entry without holding the index lock afterwards.
func (s *Store) get(title string) (*thread, error) {
	s.mu.RLock()
	t, ok := s.threads[title]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	return t, nil
}

// CreateThread inserts a new, empty thread. The existence check and the
// insert happen under one lock, so concurrent creators racing on a title
// get exactly one winner.
func (s *Store) CreateThread(ctx context.Context, title, creator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[title]; ok {
		return fmt.Errorf("thread %s: %w", title, common.ErrAlreadyExists)
	}
	s.threads[title] = &thread{creator: creator}
	return nil
}

// ListThreads returns the current thread titles in lexicographic order.
func (s *Store) ListThreads(ctx context.Context) []string {
	s.mu.RLock()
	titles := make([]string, 0, len(s.threads))
	for title := range s.threads {
		titles = append(titles, title)
	}
	s.mu.RUnlock()
	sort.Strings(titles)
	return titles
}

// AppendMessage adds a message at the next position and returns it.
func (s *Store) AppendMessage(ctx context.Context, title, author, body string) (int, error) {
	t, err := s.get(title)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return 0, fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	pos := len(t.messages) + 1
	t.messages = append(t.messages, Message{Position: pos, Author: author, Body: body})
	return pos, nil
}

// EditMessage replaces the body of the message at position, marking it
// edited. Only the author may edit.
func (s *Store) EditMessage(ctx context.Context, title string, position int, requester, newBody string) error {
	t, err := s.get(title)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	if position < 1 || position > len(t.messages) {
		return fmt.Errorf("message %d in thread %s: %w", position, title, common.ErrNotFound)
	}
	m := &t.messages[position-1]
	if m.Author != requester {
		return fmt.Errorf("message %d belongs to %s: %w", position, m.Author, common.ErrForbidden)
	}
	m.Body = newBody
	m.Edited = true
	return nil
}

// DeleteMessage removes the message at position and renumbers the ones
// after it. Only the author may delete.
func (s *Store) DeleteMessage(ctx context.Context, title string, position int, requester string) error {
	t, err := s.get(title)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	if position < 1 || position > len(t.messages) {
		return fmt.Errorf("message %d in thread %s: %w", position, title, common.ErrNotFound)
	}
	if t.messages[position-1].Author != requester {
		return fmt.Errorf("message %d belongs to %s: %w", position, t.messages[position-1].Author, common.ErrForbidden)
	}
	t.messages = append(t.messages[:position-1], t.messages[position:]...)
	for i := position - 1; i < len(t.messages); i++ {
		t.messages[i].Position = i + 1
	}
	return nil
}

// RemoveThread deletes the thread and all its contents. Only the creator
// may remove it. The file records of the removed thread are returned so
// the caller can delete the bytes on disk.
func (s *Store) RemoveThread(ctx context.Context, title, requester string) ([]FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[title]
	if !ok {
		return nil, fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.creator != requester {
		return nil, fmt.Errorf("thread %s was created by %s: %w", title, t.creator, common.ErrForbidden)
	}
	t.removed = true
	delete(s.threads, title)
	return t.files, nil
}

// ReadThread returns an ordered snapshot of the thread's messages and
// file records.
func (s *Store) ReadThread(ctx context.Context, title string) (ThreadView, error) {
	t, err := s.get(title)
	if err != nil {
		return ThreadView{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return ThreadView{}, fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	view := ThreadView{
		Title:    title,
		Creator:  t.creator,
		Messages: append([]Message(nil), t.messages...),
		Files:    append([]FileRecord(nil), t.files...),
	}
	return view, nil
}

// HasThread reports thread existence, for validations that do not need a
// snapshot.
func (s *Store) HasThread(ctx context.Context, title string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[title]
	return ok
}

// AttachFile records a completed upload on the thread. A filename may be
// uploaded once per thread.
func (s *Store) AttachFile(ctx context.Context, title, name, uploader string, size int64) error {
	t, err := s.get(title)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	for _, f := range t.files {
		if f.Name == name {
			return fmt.Errorf("file %s in thread %s: %w", name, title, common.ErrAlreadyExists)
		}
	}
	t.files = append(t.files, FileRecord{Name: name, Uploader: uploader, Size: size})
	return nil
}

// FileInfo returns the record of an uploaded file.
func (s *Store) FileInfo(ctx context.Context, title, name string) (FileRecord, error) {
	t, err := s.get(title)
	if err != nil {
		return FileRecord{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.removed {
		return FileRecord{}, fmt.Errorf("thread %s: %w", title, common.ErrNotFound)
	}
	for _, f := range t.files {
		if f.Name == name {
			return f, nil
		}
	}
	return FileRecord{}, fmt.Errorf("file %s in thread %s: %w", name, title, common.ErrNotFound)
}
