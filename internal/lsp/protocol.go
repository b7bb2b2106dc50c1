package lsp

// Wire-level LSP types. Positions and ranges here are always zero-based
// on both axes, matching the wire; internal/analyzer is responsible for
// translating to the one-based-line public convention at its boundary.

type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// SymbolKind mirrors LSP's textDocument/documentSymbol SymbolKind enum
// (1-indexed on the wire); Name() gives the spec's enumerated name.
type SymbolKind int

const (
	KindFile          SymbolKind = 1
	KindModule        SymbolKind = 2
	KindNamespace     SymbolKind = 3
	KindPackage       SymbolKind = 4
	KindClass         SymbolKind = 5
	KindMethod        SymbolKind = 6
	KindProperty      SymbolKind = 7
	KindField         SymbolKind = 8
	KindConstructor   SymbolKind = 9
	KindEnum          SymbolKind = 10
	KindInterface     SymbolKind = 11
	KindFunction      SymbolKind = 12
	KindVariable      SymbolKind = 13
	KindConstant      SymbolKind = 14
	KindString        SymbolKind = 15
	KindNumber        SymbolKind = 16
	KindBoolean       SymbolKind = 17
	KindArray         SymbolKind = 18
	KindObject        SymbolKind = 19
	KindKey           SymbolKind = 20
	KindNull          SymbolKind = 21
	KindEnumMember    SymbolKind = 22
	KindStruct        SymbolKind = 23
	KindEvent         SymbolKind = 24
	KindOperator      SymbolKind = 25
	KindTypeParameter SymbolKind = 26
)

var kindNames = map[SymbolKind]string{
	KindFile: "file", KindModule: "module", KindNamespace: "namespace",
	KindPackage: "package", KindClass: "class", KindMethod: "method",
	KindProperty: "property", KindField: "field", KindConstructor: "constructor",
	KindEnum: "enum", KindInterface: "interface", KindFunction: "function",
	KindVariable: "variable", KindConstant: "constant", KindString: "string",
	KindNumber: "number", KindBoolean: "boolean", KindArray: "array",
	KindObject: "object", KindKey: "key", KindNull: "null",
	KindEnumMember: "enum-member", KindStruct: "struct", KindEvent: "event",
	KindOperator: "operator", KindTypeParameter: "type-parameter",
}

// Name returns the spec's enumerated kind name, or "object" for an
// unrecognized wire value rather than panicking on a server we don't
// fully understand yet.
func (k SymbolKind) Name() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "object"
}

// DocumentSymbol is the wire shape of one node in a
// textDocument/documentSymbol response (the "hierarchical" variant;
// servers returning the flat SymbolInformation variant are normalized
// into this shape by the client before returning).
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           SymbolKind       `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation is the flat, legacy shape some servers return
// instead of DocumentSymbol.
type SymbolInformation struct {
	Name     string     `json:"name"`
	Kind     SymbolKind `json:"kind"`
	Location Location   `json:"location"`
}

type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

type Hover struct {
	Contents any    `json:"contents"`
	Range    *Range `json:"range,omitempty"`
}

type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type InitializeParams struct {
	ProcessID             *int               `json:"processId"`
	RootURI               *string            `json:"rootUri"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
}

type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
}

type TextDocumentClientCapabilities struct {
	DocumentSymbol DocumentSymbolClientCapabilities `json:"documentSymbol"`
	Hover          HoverClientCapabilities          `json:"hover"`
	References     ReferencesClientCapabilities     `json:"references"`
	Definition     DefinitionClientCapabilities     `json:"definition"`
}

type DocumentSymbolClientCapabilities struct {
	HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport"`
}

type HoverClientCapabilities struct{}
type ReferencesClientCapabilities struct{}
type DefinitionClientCapabilities struct{}

// InitializeResult carries only the bits SwiftLens inspects; anything
// else the server returns is dropped on the floor.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
}

type ServerCapabilities struct {
	DocumentSymbolProvider any `json:"documentSymbolProvider,omitempty"`
	HoverProvider          any `json:"hoverProvider,omitempty"`
	ReferencesProvider     any `json:"referencesProvider,omitempty"`
	DefinitionProvider     any `json:"definitionProvider,omitempty"`
}
