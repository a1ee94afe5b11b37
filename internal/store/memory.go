package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// entity is the common record for nodes and relations.
type entity struct {
	typ     string
	label   string // empty for relations
	tv      TruthValue
	members []Ref // nil for nodes
}

// Memory is the in-memory Store implementation. It is the default
// backend for tests and for hosts that do not need persistence.
type Memory struct {
	mu       sync.RWMutex
	log      *zap.Logger
	entities map[Ref]*entity
	order    []Ref          // insertion order of all entities
	nodeKey  map[string]Ref // type + "\x00" + label -> node
	relKey   map[string]Ref // type + "\x00" + joined member ids -> relation
	incoming map[Ref][]Ref  // member -> relations referencing it
}

// NewMemory creates an empty in-memory store. A nil logger is replaced
// with a no-op logger.
func NewMemory(log *zap.Logger) *Memory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Memory{
		log:      log,
		entities: make(map[Ref]*entity),
		nodeKey:  make(map[string]Ref),
		relKey:   make(map[string]Ref),
		incoming: make(map[Ref][]Ref),
	}
}

func nodeKeyOf(nodeType, label string) string {
	return nodeType + "\x00" + label
}

func relKeyOf(relType string, members []Ref) string {
	parts := make([]string, 0, len(members)+1)
	parts = append(parts, relType)
	for _, m := range members {
		parts = append(parts, string(m))
	}
	return strings.Join(parts, "\x00")
}

// CreateNode finds or creates the node with the given type and label.
func (s *Memory) CreateNode(nodeType, label string) (Ref, error) {
	if nodeType == "" {
		return NilRef, fmt.Errorf("node type must be non-empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := nodeKeyOf(nodeType, label)
	if ref, ok := s.nodeKey[key]; ok {
		return ref, nil
	}

	ref := Ref(uuid.NewString())
	s.entities[ref] = &entity{typ: nodeType, label: label}
	s.order = append(s.order, ref)
	s.nodeKey[key] = ref

	s.log.Debug("node created", zap.String("type", nodeType), zap.String("label", label))
	return ref, nil
}

// CreateRelation finds or creates a relation over the given members.
func (s *Memory) CreateRelation(relType string, members []Ref) (Ref, error) {
	if relType == "" {
		return NilRef, fmt.Errorf("relation type must be non-empty")
	}
	if len(members) == 0 {
		return NilRef, fmt.Errorf("relation requires at least one member")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range members {
		if _, ok := s.entities[m]; !ok {
			return NilRef, fmt.Errorf("unknown member ref %q", m)
		}
	}

	key := relKeyOf(relType, members)
	if ref, ok := s.relKey[key]; ok {
		return ref, nil
	}

	ref := Ref(uuid.NewString())
	s.entities[ref] = &entity{
		typ:     relType,
		members: append([]Ref(nil), members...),
	}
	s.order = append(s.order, ref)
	s.relKey[key] = ref
	for _, m := range members {
		s.incoming[m] = append(s.incoming[m], ref)
	}

	s.log.Debug("relation created", zap.String("type", relType), zap.Int("members", len(members)))
	return ref, nil
}

// SetTruthValue attaches a clamped truth value to the entity.
func (s *Memory) SetTruthValue(ref Ref, tv TruthValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[ref]
	if !ok {
		return fmt.Errorf("unknown ref %q", ref)
	}
	e.tv = tv.Clamp()
	return nil
}

// GetTruthValue returns the entity's truth value.
func (s *Memory) GetTruthValue(ref Ref) (TruthValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[ref]
	if !ok {
		return TruthValue{}, fmt.Errorf("unknown ref %q", ref)
	}
	return e.tv, nil
}

// Incoming returns every relation referencing ref, in creation order.
func (s *Memory) Incoming(ref Ref) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.entities[ref]; !ok {
		return nil, fmt.Errorf("unknown ref %q", ref)
	}
	return append([]Ref(nil), s.incoming[ref]...), nil
}

// Members returns the ordered member set of a relation.
func (s *Memory) Members(ref Ref) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[ref]
	if !ok {
		return nil, fmt.Errorf("unknown ref %q", ref)
	}
	return append([]Ref(nil), e.members...), nil
}

// Label returns the node's name. Relations yield an empty string.
func (s *Memory) Label(ref Ref) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[ref]
	if !ok {
		return "", fmt.Errorf("unknown ref %q", ref)
	}
	return e.label, nil
}

// TypeOf returns the node or relation type.
func (s *Memory) TypeOf(ref Ref) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[ref]
	if !ok {
		return "", fmt.Errorf("unknown ref %q", ref)
	}
	return e.typ, nil
}

// QueryByType returns all entities of the given type in creation order.
// An empty type matches every entity.
func (s *Memory) QueryByType(t string) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Ref
	for _, ref := range s.order {
		if t == "" || s.entities[ref].typ == t {
			out = append(out, ref)
		}
	}
	return out, nil
}

// QueryByName returns the nodes of type t whose label matches exactly.
func (s *Memory) QueryByName(t, label string) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ref, ok := s.nodeKey[nodeKeyOf(t, label)]; ok {
		return []Ref{ref}, nil
	}
	return nil, nil
}

// Size returns the number of stored entities.
func (s *Memory) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}
