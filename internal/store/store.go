// Package store defines the knowledge store contract the agent core is
// written against, plus two reference implementations (in-memory and
// SQLite). The core holds opaque refs only; the store owns the entities.
package store

// Ref is an opaque handle to a node or relation owned by a Store.
// The zero value NilRef means "no entity" and is the sentinel returned
// by operations that have nothing to return.
type Ref string

// NilRef is the undefined-reference sentinel.
const NilRef Ref = ""

// IsNil reports whether the ref is the undefined sentinel.
func (r Ref) IsNil() bool { return r == NilRef }

// Node types used by the agent core.
const (
	NodeConcept = "concept"
)

// Relation types used by the agent core. The vocabulary mirrors the
// link types the goal and knowledge subsystems record.
const (
	RelMember      = "member"      // category/container membership
	RelInheritance = "inheritance" // hierarchy edge (subgoals, isa)
	RelEvaluation  = "evaluation"  // generic association
	RelSequential  = "sequential"  // ordering/dependency edge
	RelSuspended   = "suspended"   // goal shelved by a newer goal
	RelDecomposed  = "decomposed"  // goal has been decomposed
)

// Store is the operation set the core consumes. Implementations must be
// safe for concurrent readers with a single writer; the core does no
// locking of its own over store contents.
//
// CreateNode is find-or-create on (nodeType, label): creating the same
// pair twice returns the same ref. CreateRelation dedupes on
// (relType, members) the same way.
type Store interface {
	CreateNode(nodeType, label string) (Ref, error)
	CreateRelation(relType string, members []Ref) (Ref, error)

	SetTruthValue(ref Ref, tv TruthValue) error
	GetTruthValue(ref Ref) (TruthValue, error)

	// Incoming returns every relation that references ref as a member.
	Incoming(ref Ref) ([]Ref, error)
	// Members returns the ordered member set of a relation. Nodes have
	// no members.
	Members(ref Ref) ([]Ref, error)

	// Label returns the entity name. Relations are unnamed and yield "".
	Label(ref Ref) (string, error)
	TypeOf(ref Ref) (string, error)

	QueryByType(t string) ([]Ref, error)
	QueryByName(t, label string) ([]Ref, error)

	Size() int
}
