package analyzer

import (
	"context"
	"os"
	"time"

	"swiftlens/internal/lsp"
	"swiftlens/internal/project"
	"swiftlens/internal/supervisor"
	"swiftlens/internal/swifterr"
	"swiftlens/internal/validate"
)

// Analyzer composes project discovery, the server supervisor, and the
// LSP client into the analysis operations E exposes to tool handlers.
type Analyzer struct {
	discoverer *project.Discoverer
	supervisor *supervisor.Supervisor
}

func New(discoverer *project.Discoverer, sup *supervisor.Supervisor) *Analyzer {
	return &Analyzer{discoverer: discoverer, supervisor: sup}
}

// openFile resolves path to a project-scoped, ready session and opens
// the document on it, returning the absolute path, the session, the
// file-scheme URI, and a close func the caller must always invoke
// (paired open/close, §8 property 3).
func (a *Analyzer) openFile(ctx context.Context, path string) (abs string, sess *supervisor.Session, uri string, closeFn func(), err error) {
	abs, err = validate.SwiftFile(path)
	if err != nil {
		return "", nil, "", nil, err
	}

	root, err := a.discoverer.Discover(abs)
	if err != nil {
		return "", nil, "", nil, swifterr.Wrap(swifterr.Internal, err, "discover project root for %s", abs)
	}
	if root.Kind == project.KindNone {
		return "", nil, "", nil, swifterr.New(swifterr.ProjectNotFound, "no package/project/workspace found above %s", abs)
	}

	sess, err = a.supervisor.Acquire(ctx, root)
	if err != nil {
		return "", nil, "", nil, err
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return "", nil, "", nil, swifterr.Wrap(swifterr.FileNotFound, err, "read %s", abs)
	}

	uri = "file://" + abs
	if err := sess.Client.DidOpen(ctx, uri, "swift", 1, string(content)); err != nil {
		return "", nil, "", nil, err
	}

	closeFn = func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sess.Client.DidClose(closeCtx, uri)
	}
	return abs, sess, uri, closeFn, nil
}

// AnalyzeFileSymbols returns the document-symbol tree verbatim (kind
// names attached, source order preserved).
func (a *Analyzer) AnalyzeFileSymbols(ctx context.Context, path string) ([]SymbolRecord, error) {
	_, sess, uri, closeFn, err := a.openFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	syms, err := sess.Client.DocumentSymbols(ctx, uri)
	if err != nil {
		return nil, err
	}
	return toSymbolRecords(syms), nil
}

// GetSymbolsOverview returns only the top-level nodes of the symbol
// tree.
func (a *Analyzer) GetSymbolsOverview(ctx context.Context, path string) ([]SymbolRecord, error) {
	syms, err := a.AnalyzeFileSymbols(ctx, path)
	if err != nil {
		return nil, err
	}
	for i := range syms {
		syms[i].Children = nil
	}
	return syms, nil
}

// GetDeclarationContext walks the symbol tree depth-first and returns
// the dotted declaration path of every node, in source order.
func (a *Analyzer) GetDeclarationContext(ctx context.Context, path string) ([]string, error) {
	syms, err := a.AnalyzeFileSymbols(ctx, path)
	if err != nil {
		return nil, err
	}
	var paths []string
	var walk func(prefix string, nodes []SymbolRecord)
	walk = func(prefix string, nodes []SymbolRecord) {
		for _, n := range nodes {
			dotted := n.Name
			if prefix != "" {
				dotted = prefix + "." + n.Name
			}
			paths = append(paths, dotted)
			walk(dotted, n.Children)
		}
	}
	walk("", syms)
	return paths, nil
}

// GetHoverInfo returns hover contents at (line, character). line is
// one-based on input and translated to zero-based before calling B;
// inputs are rejected before touching the session.
func (a *Analyzer) GetHoverInfo(ctx context.Context, path string, line, character int) (*HoverRecord, error) {
	if err := validate.HoverPosition(line, character); err != nil {
		return nil, err
	}

	_, sess, uri, closeFn, err := a.openFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	hover, err := sess.Client.Hover(ctx, uri, lsp.Position{Line: line - 1, Character: character})
	if err != nil {
		return nil, err
	}
	if hover == nil {
		return nil, nil
	}
	rec := &HoverRecord{Contents: hover.Contents}
	if hover.Range != nil {
		r := toRangeRecord(*hover.Range)
		rec.Range = &r
	}
	return rec, nil
}

// FindSymbolReferences resolves symbolName's declaration position (tree
// scan, then textual fallback) and issues references at that position.
func (a *Analyzer) FindSymbolReferences(ctx context.Context, path, symbolName string, includeDeclaration bool) ([]LocationRecord, error) {
	abs, sess, uri, closeFn, err := a.openFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	pos, err := a.resolveSymbolPosition(ctx, abs, sess, uri, symbolName)
	if err != nil {
		return nil, err
	}

	locs, err := sess.Client.References(ctx, uri, pos, includeDeclaration)
	if err != nil {
		return nil, err
	}
	return orderLocations(locs), nil
}

// GetSymbolDefinition resolves symbolName's declaration position the
// same way FindSymbolReferences does, then issues definition.
func (a *Analyzer) GetSymbolDefinition(ctx context.Context, path, symbolName string) ([]LocationRecord, error) {
	abs, sess, uri, closeFn, err := a.openFile(ctx, path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	pos, err := a.resolveSymbolPosition(ctx, abs, sess, uri, symbolName)
	if err != nil {
		return nil, err
	}

	locs, err := sess.Client.Definition(ctx, uri, pos)
	if err != nil {
		return nil, err
	}
	return orderLocations(locs), nil
}

// resolveSymbolPosition scans the document-symbol tree in source order
// for the first node named symbolName; if none matches, it falls back
// to the textual locator over the raw file content.
func (a *Analyzer) resolveSymbolPosition(ctx context.Context, abs string, sess *supervisor.Session, uri, symbolName string) (lsp.Position, error) {
	syms, err := sess.Client.DocumentSymbols(ctx, uri)
	if err != nil {
		return lsp.Position{}, err
	}
	if pos, ok := findSymbolInTree(syms, symbolName); ok {
		return pos, nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return lsp.Position{}, swifterr.Wrap(swifterr.FileNotFound, err, "read %s", abs)
	}
	loc, ok := findSymbolTextBased(string(content), symbolName)
	if !ok {
		return lsp.Position{}, swifterr.New(swifterr.Validation, "symbol %q not found in %s", symbolName, abs)
	}
	return lsp.Position{Line: loc.line - 1, Character: loc.character}, nil
}

// findSymbolInTree performs a depth-first, source-order scan for the
// first node named name, returning its selection-range start.
func findSymbolInTree(nodes []lsp.DocumentSymbol, name string) (lsp.Position, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n.SelectionRange.Start, true
		}
		if pos, ok := findSymbolInTree(n.Children, name); ok {
			return pos, true
		}
	}
	return lsp.Position{}, false
}

// orderLocations dedups by (uri, range) and always sorts by (uri,
// start-line, start-character); the order in which the server returned
// the locations is not kept.
func orderLocations(locs []lsp.Location) []LocationRecord {
	recs := normalizeLocations(locs)
	sortLocationRecords(recs)
	return recs
}
