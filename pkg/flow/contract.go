package flow

import "github.com/thinksystem/pddfr/pkg/bytecode"

// PathSegment is one step of a state/input path walk, matching spec.md's
// PathSegment ∈ {State, Input, Key(s), Index(u), DynamicOffset(ast)}.
type PathSegment struct {
	Kind  PathKind
	Key   string // valid when Kind == PathKeySeg
	Index int    // valid when Kind == PathIndexSeg
	Dyn   *bytecode.Program
}

type PathKind int

const (
	PathState PathKind = iota
	PathInput
	PathKeySeg
	PathIndexSeg
	PathDynamicOffset
)

// SourceMap records which BlockDefinition an AST node was lowered from, for
// error reporting back in terms of the original flow.
type SourceMap struct {
	BlockID   string
	BlockType string
}

// ContractNode is the AST the transpiler produces, one tree per block id.
// Concrete node kinds implement it as a marker, matching pkg/compiler's
// flat-struct AST style rather than method-dispatch polymorphism.
type ContractNode interface {
	contractNode() *SourceMap
}

type baseNode struct{ Source SourceMap }

func (b baseNode) contractNode() *SourceMap { return &b.Source }

type Literal struct {
	baseNode
	Value any
}

type Fetch struct {
	baseNode
	Path []PathSegment
}

type Assign struct {
	baseNode
	Path  []PathSegment
	Value ContractNode
}

type Sequence struct {
	baseNode
	Steps []ContractNode
}

type If struct {
	baseNode
	Cond ContractNode
	Then ContractNode
	Else ContractNode
}

type SetNextBlock struct {
	baseNode
	BlockID string
}

type Await struct {
	baseNode
	InteractionID string
	AgentID       string
	Prompt        ContractNode
	StateKey      string
	NextBlockID   string
}

type Terminate struct {
	baseNode
	ResultKey string
}

type PushErrorHandler struct {
	baseNode
	CatchBlockID string
}

type PopErrorHandler struct {
	baseNode
}

// Evaluate runs a compiled expression program against the execution context
// and, when OutputPath is non-empty, assigns the result there.
type Evaluate struct {
	baseNode
	Program    *bytecode.Program
	OutputPath []PathSegment
}

// ParallelExec fans out to each branch's entry block id, merges their
// results per Merge, writes the merged value at OutputPath, and resumes at
// NextBlockID.
type ParallelExec struct {
	baseNode
	Branches    []string
	Merge       MergeStrategy
	TimeoutSecs int
	OutputPath  []PathSegment
	NextBlockID string
}

// Contract is the transpiler's output: every block id mapped to the AST
// subtree C6 walks for it.
type Contract struct {
	Nodes map[string]ContractNode
}
