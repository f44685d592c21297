package statesync

import (
	"ext-bridge/message"
	"fmt"
	"sort"
	"sync"
)

// EditorStateService reports document and editor changes to the extension side.
//
// The mutex covers resolving a proxy and handing the envelope to the channel, so two
// goroutines reporting changes reach the wire in the order they entered the service.
type EditorStateService struct {
	mu    sync.Mutex
	cache proxyCache
}

func NewEditorStateService(resolver ProxyResolver) *EditorStateService {
	return &EditorStateService{cache: newProxyCache(resolver)}
}

// AcceptDocumentsAndEditorsDelta sends delta as a single notification.
func (s *EditorStateService) AcceptDocumentsAndEditorsDelta(delta DocumentsAndEditorsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.cache.get(ExtHostDocumentsAndEditors)
	if err != nil {
		return err
	}
	return p.Notify(methodAcceptDocumentsAndEditorsDelta, delta)
}

// AcceptEditorPropertiesChanged sends one notification per editor, in editor id order.
// It stops at the first failure.
func (s *EditorStateService) AcceptEditorPropertiesChanged(changes map[string]EditorPropertiesChangeData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.cache.get(ExtHostEditors)
	if err != nil {
		return err
	}
	for _, id := range sortedKeys(changes) {
		if err := p.Notify(methodAcceptEditorPropertiesChanged, id, changes[id]); err != nil {
			return fmt.Errorf("statesync: editor %s: %w", id, err)
		}
	}
	return nil
}

// AcceptModelChanged sends one notification per document, in uri order. Each carries the
// document's dirty flag as its own argument.
func (s *EditorStateService) AcceptModelChanged(changes map[string]ModelChangedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.cache.get(ExtHostDocuments)
	if err != nil {
		return err
	}
	for _, uri := range sortedKeys(changes) {
		event := changes[uri]
		if err := p.Notify(methodAcceptModelChanged, uri, event, event.IsDirty); err != nil {
			return fmt.Errorf("statesync: document %s: %w", uri, err)
		}
	}
	return nil
}

// AcceptEditorPositionData reports the view column of each editor in one notification.
func (s *EditorStateService) AcceptEditorPositionData(positions map[string]int) error {
	return s.notify(ExtHostEditors, methodAcceptEditorPositionData, positions)
}

// AcceptEditorDiffInformation reports the diffs of one editor. A nil diff clears them.
func (s *EditorStateService) AcceptEditorDiffInformation(id string, diff []TextEditorDiffInformation) error {
	return s.notify(ExtHostEditors, methodAcceptEditorDiffInformation, id, diff)
}

func (s *EditorStateService) notify(id message.ServiceID, method string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.cache.get(id)
	if err != nil {
		return err
	}
	return p.Notify(method, args...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
