// Package statesync mirrors editor, document, tab and command state from the host to the
// extension runtime.
//
// Each service resolves the proxies it needs lazily and emits one call per state change.
// State-change reports are notifications; only the command service waits for answers.
// Failures are handed back to the caller as they are: nothing here retries.
package statesync

import (
	"ext-bridge/message"
	"ext-bridge/proxy"
)

const (
	ExtHostDocumentsAndEditors message.ServiceID = "ExtHostDocumentsAndEditors"
	ExtHostDocuments           message.ServiceID = "ExtHostDocuments"
	ExtHostEditors             message.ServiceID = "ExtHostEditors"
	ExtHostEditorTabs          message.ServiceID = "ExtHostEditorTabs"
	ExtHostCommands            message.ServiceID = "ExtHostCommands"
)

const (
	methodAcceptDocumentsAndEditorsDelta = "acceptDocumentsAndEditorsDelta"
	methodAcceptModelChanged             = "acceptModelChanged"
	methodAcceptEditorPropertiesChanged  = "acceptEditorPropertiesChanged"
	methodAcceptEditorPositionData       = "acceptEditorPositionData"
	methodAcceptEditorDiffInformation    = "acceptEditorDiffInformation"
	methodAcceptEditorTabModel           = "acceptEditorTabModel"
	methodAcceptTabGroupUpdate           = "acceptTabGroupUpdate"
	methodAcceptTabOperation             = "acceptTabOperation"
	methodExecuteContributedCommand      = "executeContributedCommand"
	methodGetContributedCommandMetadata  = "getContributedCommandMetadata"
)

// Contracts returns the declarations of the extension-side services this package calls.
func Contracts() []proxy.Contract {
	return []proxy.Contract{
		{
			Service: ExtHostDocumentsAndEditors,
			Methods: map[string]message.CallKind{
				methodAcceptDocumentsAndEditorsDelta: message.Notification,
			},
		},
		{
			Service: ExtHostDocuments,
			Methods: map[string]message.CallKind{
				methodAcceptModelChanged: message.Notification,
			},
		},
		{
			Service: ExtHostEditors,
			Methods: map[string]message.CallKind{
				methodAcceptEditorPropertiesChanged: message.Notification,
				methodAcceptEditorPositionData:      message.Notification,
				methodAcceptEditorDiffInformation:   message.Notification,
			},
		},
		{
			Service: ExtHostEditorTabs,
			Methods: map[string]message.CallKind{
				methodAcceptEditorTabModel: message.Notification,
				methodAcceptTabGroupUpdate: message.Notification,
				methodAcceptTabOperation:   message.Notification,
			},
		},
		{
			Service: ExtHostCommands,
			Methods: map[string]message.CallKind{
				methodExecuteContributedCommand:     message.Request,
				methodGetContributedCommandMetadata: message.Request,
			},
		},
	}
}

// ProxyResolver hands out the shared proxy of a service. *registry.Registry implements it.
type ProxyResolver interface {
	Proxy(id message.ServiceID) (*proxy.Proxy, error)
}

// proxyCache holds the proxies one service has resolved so far. Callers hold the owning
// service's mutex.
type proxyCache struct {
	resolver ProxyResolver
	proxies  map[message.ServiceID]*proxy.Proxy
}

func newProxyCache(resolver ProxyResolver) proxyCache {
	return proxyCache{resolver: resolver, proxies: make(map[message.ServiceID]*proxy.Proxy)}
}

func (c *proxyCache) get(id message.ServiceID) (*proxy.Proxy, error) {
	if p, ok := c.proxies[id]; ok {
		return p, nil
	}
	p, err := c.resolver.Proxy(id)
	if err != nil {
		return nil, err
	}
	c.proxies[id] = p
	return p, nil
}
