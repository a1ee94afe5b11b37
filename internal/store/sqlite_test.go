package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SQLiteStoreSuite struct {
	suite.Suite
	path string
	st   *SQLite
}

func (s *SQLiteStoreSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "knowledge.db")
	st, err := NewSQLite(s.path, nil)
	s.Require().NoError(err)
	s.st = st
}

func (s *SQLiteStoreSuite) TearDownTest() {
	if s.st != nil {
		s.Require().NoError(s.st.Close())
	}
}

func (s *SQLiteStoreSuite) reopen() {
	s.Require().NoError(s.st.Close())
	st, err := NewSQLite(s.path, nil)
	s.Require().NoError(err)
	s.st = st
}

func (s *SQLiteStoreSuite) TestFindOrCreateNode() {
	a, err := s.st.CreateNode(NodeConcept, "Water")
	s.Require().NoError(err)
	b, err := s.st.CreateNode(NodeConcept, "Water")
	s.Require().NoError(err)
	s.Equal(a, b)
	s.Equal(1, s.st.Size())
}

func (s *SQLiteStoreSuite) TestRelationDedup() {
	a, _ := s.st.CreateNode(NodeConcept, "a")
	b, _ := s.st.CreateNode(NodeConcept, "b")

	r1, err := s.st.CreateRelation(RelMember, []Ref{a, b})
	s.Require().NoError(err)
	r2, err := s.st.CreateRelation(RelMember, []Ref{a, b})
	s.Require().NoError(err)
	s.Equal(r1, r2)

	r3, err := s.st.CreateRelation(RelMember, []Ref{b, a})
	s.Require().NoError(err)
	s.NotEqual(r1, r3)
}

func (s *SQLiteStoreSuite) TestTruthValuePersistsAcrossReopen() {
	a, err := s.st.CreateNode(NodeConcept, "Water")
	s.Require().NoError(err)
	s.Require().NoError(s.st.SetTruthValue(a, TruthValue{Strength: 0.75, Confidence: 0.9}))

	s.reopen()

	refs, err := s.st.QueryByName(NodeConcept, "Water")
	s.Require().NoError(err)
	s.Require().Len(refs, 1)
	s.Equal(a, refs[0])

	tv, err := s.st.GetTruthValue(refs[0])
	s.Require().NoError(err)
	s.InDelta(0.75, tv.Strength, 1e-9)
	s.InDelta(0.9, tv.Confidence, 1e-9)
}

func (s *SQLiteStoreSuite) TestIncomingTraversal() {
	a, _ := s.st.CreateNode(NodeConcept, "a")
	b, _ := s.st.CreateNode(NodeConcept, "b")
	r1, _ := s.st.CreateRelation(RelMember, []Ref{a, b})
	r2, _ := s.st.CreateRelation(RelEvaluation, []Ref{a})

	in, err := s.st.Incoming(a)
	s.Require().NoError(err)
	s.Equal([]Ref{r1, r2}, in)

	members, err := s.st.Members(r1)
	s.Require().NoError(err)
	s.Equal([]Ref{a, b}, members)
}

func (s *SQLiteStoreSuite) TestQueryByTypeCreationOrder() {
	a, _ := s.st.CreateNode(NodeConcept, "first")
	_, _ = s.st.CreateNode("Other", "second")
	c, _ := s.st.CreateNode(NodeConcept, "third")

	refs, err := s.st.QueryByType(NodeConcept)
	s.Require().NoError(err)
	s.Equal([]Ref{a, c}, refs)
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, new(SQLiteStoreSuite))
}

func TestSQLiteCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "knowledge.db")
	st, err := NewSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}
