package statesync

import "sync"

// TabStateService reports the editor tab model to the extension side.
type TabStateService struct {
	mu    sync.Mutex
	cache proxyCache
}

func NewTabStateService(resolver ProxyResolver) *TabStateService {
	return &TabStateService{cache: newProxyCache(resolver)}
}

// AcceptEditorTabModel replaces the whole tab model.
func (s *TabStateService) AcceptEditorTabModel(groups []EditorTabGroupDto) error {
	if groups == nil {
		groups = []EditorTabGroupDto{}
	}
	return s.notify(methodAcceptEditorTabModel, groups)
}

// AcceptTabGroupUpdate replaces one group.
func (s *TabStateService) AcceptTabGroupUpdate(group EditorTabGroupDto) error {
	return s.notify(methodAcceptTabGroupUpdate, group)
}

// AcceptTabOperation reports one incremental change. A move is always a single operation.
func (s *TabStateService) AcceptTabOperation(op TabOperation) error {
	return s.notify(methodAcceptTabOperation, op)
}

func (s *TabStateService) notify(method string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.cache.get(ExtHostEditorTabs)
	if err != nil {
		return err
	}
	return p.Notify(method, args...)
}
