package statesync

import "encoding/json"

// Range is a 1-based, end-exclusive span in a document.
type Range struct {
	StartLineNumber int `json:"startLineNumber"`
	StartColumn     int `json:"startColumn"`
	EndLineNumber   int `json:"endLineNumber"`
	EndColumn       int `json:"endColumn"`
}

// Selection is a range with a direction: the anchor is where it started, the position
// is where the cursor is.
type Selection struct {
	SelectionStartLineNumber int `json:"selectionStartLineNumber"`
	SelectionStartColumn     int `json:"selectionStartColumn"`
	PositionLineNumber       int `json:"positionLineNumber"`
	PositionColumn           int `json:"positionColumn"`
}

// EditorOptions is the resolved configuration of a text editor.
type EditorOptions struct {
	TabSize      int  `json:"tabSize"`
	IndentSize   int  `json:"indentSize"`
	InsertSpaces bool `json:"insertSpaces"`
	CursorStyle  int  `json:"cursorStyle"`
	LineNumbers  int  `json:"lineNumbers"`
}

// ModelAddedData describes a document the extension side has not seen yet.
type ModelAddedData struct {
	URI        string   `json:"uri"`
	VersionID  int      `json:"versionId"`
	Lines      []string `json:"lines"`
	EOL        string   `json:"EOL"`
	LanguageID string   `json:"languageId"`
	IsDirty    bool     `json:"isDirty"`
	Encoding   string   `json:"encoding,omitempty"`
}

// TextEditorAddData describes an editor the extension side has not seen yet.
type TextEditorAddData struct {
	ID             string        `json:"id"`
	DocumentURI    string        `json:"documentUri"`
	Options        EditorOptions `json:"options"`
	Selections     []Selection   `json:"selections"`
	VisibleRanges  []Range       `json:"visibleRanges"`
	EditorPosition *int          `json:"editorPosition,omitempty"`
}

// DocumentsAndEditorsDelta is one batch of document and editor lifecycle changes.
type DocumentsAndEditorsDelta struct {
	RemovedDocuments []string            `json:"removedDocuments,omitempty"`
	AddedDocuments   []ModelAddedData    `json:"addedDocuments,omitempty"`
	RemovedEditors   []string            `json:"removedEditors,omitempty"`
	AddedEditors     []TextEditorAddData `json:"addedEditors,omitempty"`
	NewActiveEditor  *string             `json:"newActiveEditor,omitempty"`
}

// IsEmpty reports whether the delta carries no change at all.
func (d DocumentsAndEditorsDelta) IsEmpty() bool {
	return len(d.RemovedDocuments) == 0 && len(d.AddedDocuments) == 0 &&
		len(d.RemovedEditors) == 0 && len(d.AddedEditors) == 0 && d.NewActiveEditor == nil
}

type SelectionChangeEvent struct {
	Selections []Selection `json:"selections"`
	Source     string      `json:"source,omitempty"`
}

// EditorPropertiesChangeData carries only the properties that changed; nil fields did not.
type EditorPropertiesChangeData struct {
	Options       *EditorOptions        `json:"options,omitempty"`
	Selections    *SelectionChangeEvent `json:"selections,omitempty"`
	VisibleRanges []Range               `json:"visibleRanges,omitempty"`
}

type ModelContentChange struct {
	Range       Range  `json:"range"`
	RangeOffset int    `json:"rangeOffset"`
	RangeLength int    `json:"rangeLength"`
	Text        string `json:"text"`
}

// ModelChangedEvent is one content change of a document.
type ModelChangedEvent struct {
	Changes   []ModelContentChange `json:"changes"`
	EOL       string               `json:"eol"`
	VersionID int                  `json:"versionId"`
	IsUndoing bool                 `json:"isUndoing"`
	IsRedoing bool                 `json:"isRedoing"`
	IsDirty   bool                 `json:"isDirty"`
}

type LineChange struct {
	OriginalStartLineNumber int `json:"originalStartLineNumber"`
	OriginalEndLineNumber   int `json:"originalEndLineNumber"`
	ModifiedStartLineNumber int `json:"modifiedStartLineNumber"`
	ModifiedEndLineNumber   int `json:"modifiedEndLineNumber"`
}

// TextEditorDiffInformation is the diff of an editor's document against one original.
type TextEditorDiffInformation struct {
	DocumentVersion int          `json:"documentVersion"`
	Original        string       `json:"original,omitempty"`
	Modified        string       `json:"modified"`
	Changes         []LineChange `json:"changes"`
	IsStale         bool         `json:"isStale"`
}

// EditorTabDto is one tab. Input is kept raw: its shape depends on the editor kind.
type EditorTabDto struct {
	ID        string          `json:"id"`
	Label     string          `json:"label"`
	Input     json.RawMessage `json:"input,omitempty"`
	EditorID  string          `json:"editorId,omitempty"`
	IsActive  bool            `json:"isActive"`
	IsPinned  bool            `json:"isPinned"`
	IsPreview bool            `json:"isPreview"`
	IsDirty   bool            `json:"isDirty"`
}

// EditorTabGroupDto is one group of tabs in a view column.
type EditorTabGroupDto struct {
	GroupID    int            `json:"groupId"`
	IsActive   bool           `json:"isActive"`
	ViewColumn int            `json:"viewColumn"`
	Tabs       []EditorTabDto `json:"tabs"`
}

type TabOperationKind int

const (
	TabOpen TabOperationKind = iota
	TabClose
	TabUpdate
	TabMove
	TabActivate
)

func (k TabOperationKind) String() string {
	switch k {
	case TabOpen:
		return "open"
	case TabClose:
		return "close"
	case TabUpdate:
		return "update"
	case TabMove:
		return "move"
	case TabActivate:
		return "activate"
	default:
		return "unknown"
	}
}

// TabOperation is one incremental change of the tab model. A move carries both ends:
// it leaves GroupID at OldIndex and lands in ToGroupID at Index. ToGroupID is nil when a
// tab moves within its group.
type TabOperation struct {
	Kind      TabOperationKind `json:"kind"`
	GroupID   int              `json:"groupId"`
	Index     int              `json:"index"`
	OldIndex  *int             `json:"oldIndex,omitempty"`
	ToGroupID *int             `json:"toGroupId,omitempty"`
	TabDto    EditorTabDto     `json:"tabDto"`
}

// Destination returns the group a move lands in.
func (op TabOperation) Destination() int {
	if op.ToGroupID != nil {
		return *op.ToGroupID
	}
	return op.GroupID
}
