package statesync

import (
	"ext-bridge/pending"
	"sync"
)

// CommandService runs commands contributed by extensions.
type CommandService struct {
	mu    sync.Mutex
	cache proxyCache
}

func NewCommandService(resolver ProxyResolver) *CommandService {
	return &CommandService{cache: newProxyCache(resolver)}
}

// ExecuteContributedCommand asks the extension side to run command id with args. The
// future completes with the command's result.
func (s *CommandService) ExecuteContributedCommand(id string, args ...any) *pending.Future {
	callArgs := make([]any, 0, len(args)+1)
	callArgs = append(callArgs, id)
	callArgs = append(callArgs, args...)
	return s.request(methodExecuteContributedCommand, callArgs...)
}

// ContributedCommandMetadata fetches the metadata of every contributed command, keyed by
// command id.
func (s *CommandService) ContributedCommandMetadata() *pending.Future {
	return s.request(methodGetContributedCommandMetadata)
}

func (s *CommandService) request(method string, args ...any) *pending.Future {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.cache.get(ExtHostCommands)
	if err != nil {
		return pending.Failed(err)
	}
	return p.Request(method, args...)
}
