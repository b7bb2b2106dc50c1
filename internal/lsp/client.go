// Package lsp implements the LSP client: request/response correlation,
// notifications, document lifecycle, and capability negotiation over an
// internal/transport.Framed. It owns a single reader goroutine per
// client and multiplexes concurrent callers by request id, the same
// shape as the teacher's internal/mcp waiter map, generalized from
// newline-delimited JSON to full Content-Length framing.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"swiftlens/internal/swifterr"
	"swiftlens/internal/transport"
)

// State is the session state machine of §4.B: only Ready accepts
// document operations; Draining rejects new requests while in-flight
// ones complete.
type State int32

const (
	StateNew State = iota
	StateInitializing
	StateReady
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Default per-operation deadlines from spec.md §4.B.
const (
	DefaultRequestTimeout = 30 * time.Second
	HeavyRequestTimeout   = 120 * time.Second
	QuickRequestTimeout   = 15 * time.Second
	InitializeTimeout     = 60 * time.Second

	// MaxConsecutiveTimeouts is how many timeouts in a row on one
	// session trigger a supervisor-visible restart request.
	MaxConsecutiveTimeouts = 3
)

type pendingRequest struct {
	id      int64
	method  string
	ch      chan rpcMessage
	created time.Time
}

// FatalFunc is invoked once, from the client's reader goroutine, when
// the transport dies. The supervisor uses this to invalidate the
// session without the client needing a back-reference to it (Design
// Notes: "non-owning handle").
type FatalFunc func(err error)

// Client is the LSP client for one subprocess's transport. It is safe
// for concurrent use by multiple analysis goroutines.
type Client struct {
	tr *transport.Framed

	nextID atomic.Int64

	mu      sync.Mutex
	state   State
	pending map[int64]*pendingRequest
	caps    ServerCapabilities

	openDocs   map[string]struct{}
	openDocsMu sync.Mutex

	consecutiveTimeouts atomic.Int32
	onFatal             FatalFunc

	readerDone chan struct{}
}

// New constructs a client bound to tr. Call Start to begin the reader
// loop, then Initialize before issuing any document operation.
func New(tr *transport.Framed, onFatal FatalFunc) *Client {
	return &Client{
		tr:         tr,
		state:      StateNew,
		pending:    make(map[int64]*pendingRequest),
		openDocs:   make(map[string]struct{}),
		onFatal:    onFatal,
		readerDone: make(chan struct{}),
	}
}

// Start launches the single reader goroutine. Must be called exactly
// once before any request is sent.
func (c *Client) Start() {
	go c.readLoop()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// readLoop owns transport.Recv exclusively (single reader per §5) and
// dispatches responses to waiting callers by id; late responses for ids
// no longer in the pending map (cancelled or timed out) are dropped.
func (c *Client) readLoop() {
	defer close(c.readerDone)
	for {
		body, err := c.tr.Recv()
		if err != nil {
			c.failAllPending(err)
			c.setState(StateTerminated)
			if c.onFatal != nil {
				c.onFatal(err)
			}
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			continue // malformed frame content; ignore and keep reading
		}

		if msg.ID == nil {
			// Notification: diagnostics/progress/etc. SwiftLens's core
			// operations are all request/response, so notifications
			// other than ones we might add instrumentation for are
			// intentionally dropped here.
			continue
		}

		var id int64
		if err := json.Unmarshal(*msg.ID, &id); err != nil {
			continue
		}

		c.mu.Lock()
		p, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		if ok {
			select {
			case p.ch <- msg:
			default:
			}
		}
		// else: late response to a cancelled/timed-out request — dropped.
	}
}

func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range c.pending {
		p.ch <- rpcMessage{Error: &rpcError{Message: err.Error()}}
		delete(c.pending, id)
	}
}

// call sends a request and waits for its matching response, honoring
// ctx while waiting; the send itself is not bounded by ctx. On context
// cancellation it removes the pending entry before returning and sends
// $/cancelRequest from a background goroutine, per §8 property 4.
func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != StateReady && method != "initialize" {
		if state == StateDraining {
			if method != "shutdown" {
				return swifterr.New(swifterr.SessionLost, "session draining, rejecting %s", method)
			}
		} else {
			return swifterr.New(swifterr.Internal, "not-initialized: %s sent before initialize completed", method)
		}
	}

	id := c.nextID.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return swifterr.Wrap(swifterr.Internal, err, "marshal %s request", method)
	}

	ch := make(chan rpcMessage, 1)
	p := &pendingRequest{id: id, method: method, ch: ch, created: time.Now()}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()

	if err := c.tr.Send(payload); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return swifterr.Wrap(swifterr.SessionLost, err, "send %s request", method)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return swifterr.New(swifterr.LSPError, "%s", msg.Error.Message).WithCode(msg.Error.Code)
		}
		c.consecutiveTimeouts.Store(0)
		if result != nil && len(msg.Result) > 0 {
			if err := json.Unmarshal(msg.Result, result); err != nil {
				return swifterr.Wrap(swifterr.Internal, err, "unmarshal %s result", method)
			}
		}
		return nil

	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		// Sent in the background so a stalled transport cannot hold the
		// caller; the server's late response is dropped by readLoop.
		go func() { _ = c.notify("$/cancelRequest", cancelParams{ID: id}) }()

		kind := swifterr.Timeout
		if ctxErrIsCancel(ctx) {
			kind = swifterr.Internal
		}
		restartNeeded := false
		if kind == swifterr.Timeout {
			restartNeeded = c.consecutiveTimeouts.Add(1) >= MaxConsecutiveTimeouts
		}
		e := swifterr.New(kind, "%s: %v", method, ctx.Err())
		if restartNeeded && c.onFatal != nil {
			c.onFatal(fmt.Errorf("too many consecutive timeouts on session"))
		}
		return e
	}
}

func ctxErrIsCancel(ctx context.Context) bool {
	return ctx.Err() == context.Canceled
}

func (c *Client) notify(method string, params any) error {
	note := rpcNotification{JSONRPC: "2.0", Method: method, Params: params}
	payload, err := json.Marshal(note)
	if err != nil {
		return swifterr.Wrap(swifterr.Internal, err, "marshal %s notification", method)
	}
	if err := c.tr.Send(payload); err != nil {
		return swifterr.Wrap(swifterr.SessionLost, err, "send %s notification", method)
	}
	return nil
}

// Initialize must be the first request on a fresh client; requests sent
// before it completes fail with Internal/not-initialized above.
func (c *Client) Initialize(ctx context.Context, pid int, rootPath string) (ServerCapabilities, error) {
	c.setState(StateInitializing)

	rootURI := "file://" + rootPath
	params := InitializeParams{
		ProcessID: &pid,
		RootURI:   &rootURI,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				DocumentSymbol: DocumentSymbolClientCapabilities{HierarchicalDocumentSymbolSupport: true},
			},
		},
		WorkspaceFolders: []WorkspaceFolder{{URI: rootURI, Name: rootPath}},
	}

	var result InitializeResult
	// Bypass the not-initialized gate for this one call.
	if err := c.callBootstrap(ctx, "initialize", params, &result); err != nil {
		c.setState(StateTerminated)
		return ServerCapabilities{}, err
	}

	c.mu.Lock()
	c.caps = result.Capabilities
	c.state = StateReady
	c.mu.Unlock()

	if err := c.notify("initialized", struct{}{}); err != nil {
		return ServerCapabilities{}, err
	}
	return result.Capabilities, nil
}

// callBootstrap is call() without the state gate, used only by
// Initialize itself.
func (c *Client) callBootstrap(ctx context.Context, method string, params any, result any) error {
	id := c.nextID.Add(1)
	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return swifterr.Wrap(swifterr.Internal, err, "marshal %s request", method)
	}
	ch := make(chan rpcMessage, 1)
	c.mu.Lock()
	c.pending[id] = &pendingRequest{id: id, method: method, ch: ch, created: time.Now()}
	c.mu.Unlock()

	if err := c.tr.Send(payload); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return swifterr.Wrap(swifterr.SessionLost, err, "send %s request", method)
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return swifterr.New(swifterr.LSPError, "%s", msg.Error.Message).WithCode(msg.Error.Code)
		}
		if result != nil && len(msg.Result) > 0 {
			return json.Unmarshal(msg.Result, result)
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return swifterr.New(swifterr.Timeout, "%s: %v", method, ctx.Err())
	}
}

// DidOpen announces a document to the server and records uri in the
// client's open-document set. It sends didOpen on every call, even for
// a uri that is already open; internal/analyzer calls it once per
// operation and always pairs it with DidClose.
func (c *Client) DidOpen(ctx context.Context, uri, languageID string, version int, text string) error {
	err := c.notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: languageID, Version: version, Text: text},
	})
	if err == nil {
		c.openDocsMu.Lock()
		c.openDocs[uri] = struct{}{}
		c.openDocsMu.Unlock()
	}
	return err
}

// DidClose closes a previously opened document. Safe to call even if
// DidOpen never completed; it is always paired by the caller (E).
func (c *Client) DidClose(ctx context.Context, uri string) error {
	err := c.notify("textDocument/didClose", DidCloseTextDocumentParams{TextDocument: TextDocumentIdentifier{URI: uri}})
	c.openDocsMu.Lock()
	delete(c.openDocs, uri)
	c.openDocsMu.Unlock()
	return err
}

// OpenDocumentCount reports how many documents this session still has
// open; the lifecycle test (§8 property 3) uses it to check that every
// DidOpen was paired with a DidClose.
func (c *Client) OpenDocumentCount() int {
	c.openDocsMu.Lock()
	defer c.openDocsMu.Unlock()
	return len(c.openDocs)
}

// DocumentSymbols normalizes both the hierarchical (DocumentSymbol) and
// legacy flat (SymbolInformation) server responses into a single tree
// shape.
func (c *Client) DocumentSymbols(ctx context.Context, uri string) ([]DocumentSymbol, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/documentSymbol", DocumentSymbolParams{TextDocument: TextDocumentIdentifier{URI: uri}}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var hierarchical []DocumentSymbol
	if err := json.Unmarshal(raw, &hierarchical); err == nil && looksHierarchical(raw) {
		return hierarchical, nil
	}

	var flat []SymbolInformation
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, swifterr.Wrap(swifterr.Internal, err, "unmarshal documentSymbol result")
	}
	return flattenToTree(flat), nil
}

// looksHierarchical distinguishes the two documentSymbol response
// shapes by checking for a "selectionRange" key, which only the
// hierarchical DocumentSymbol variant carries.
func looksHierarchical(raw json.RawMessage) bool {
	var probe []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	for _, m := range probe {
		if _, ok := m["selectionRange"]; ok {
			return true
		}
	}
	return len(probe) == 0
}

// flattenToTree builds a single-level tree from SymbolInformation,
// which carries no containment information beyond containerName; the
// root document groups all symbols in source order.
func flattenToTree(flat []SymbolInformation) []DocumentSymbol {
	out := make([]DocumentSymbol, 0, len(flat))
	for _, s := range flat {
		out = append(out, DocumentSymbol{
			Name:           s.Name,
			Kind:           s.Kind,
			Range:          s.Location.Range,
			SelectionRange: s.Location.Range,
		})
	}
	return out
}

// Hover returns the hover contents at position, or nil if the server
// has nothing to say there (not an error — §8 scenario E2).
func (c *Client) Hover(ctx context.Context, uri string, pos Position) (*Hover, error) {
	var result *Hover
	if err := c.call(ctx, "textDocument/hover", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// References returns locations referencing the symbol at position.
func (c *Client) References(ctx context.Context, uri string, pos Position, includeDeclaration bool) ([]Location, error) {
	var result []Location
	err := c.call(ctx, "textDocument/references", ReferenceParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     pos,
		},
		Context: ReferenceContext{IncludeDeclaration: includeDeclaration},
	}, &result)
	return result, err
}

// Definition returns the declaration location(s) of the symbol at
// position. Some servers return a single Location rather than a list;
// both shapes are normalized here.
func (c *Client) Definition(ctx context.Context, uri string, pos Position) ([]Location, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "textDocument/definition", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []Location
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single Location
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, swifterr.Wrap(swifterr.Internal, err, "unmarshal definition result")
	}
	return []Location{single}, nil
}

// Shutdown performs the ordered shutdown/exit handshake and transitions
// to Draining, then waits (bounded) for the reader loop to observe
// transport closure. It does not kill the subprocess — that is the
// supervisor's responsibility.
func (c *Client) Shutdown(ctx context.Context, grace time.Duration) error {
	c.setState(StateDraining)

	shutdownErr := c.call(ctx, "shutdown", nil, nil)
	_ = c.notify("exit", nil)

	select {
	case <-c.readerDone:
	case <-time.After(grace):
	}
	c.setState(StateTerminated)
	return shutdownErr
}

// Capabilities returns the capabilities negotiated at Initialize.
func (c *Client) Capabilities() ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}
