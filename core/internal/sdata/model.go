package sdata

import (
	"fmt"
	"strings"

	"github.com/navql/navql/core/internal/util"
)

type RelType int8

const (
	RelNone RelType = iota
	RelReference
	RelCollection
	RelSkip
)

func (rt RelType) String() string {
	switch rt {
	case RelReference:
		return "reference"
	case RelCollection:
		return "collection"
	case RelSkip:
		return "skip"
	}
	return "none"
}

type Column struct {
	ID       int
	Name     string
	Type     string
	Nullable bool
	Key      bool
	Entity   string
}

type Entity struct {
	ID      int32
	Name    string
	Table   string
	Schema  string
	Columns []Column
	Key     []*Column

	// Join is set for entities that only exist to back a
	// many-to-many relationship.
	Join bool

	colMap  map[string]int
	rels    map[string]*Rel
	relList []*Rel
}

// ForeignKey links dependent columns to the key of a principal entity.
type ForeignKey struct {
	Name          string
	Dependent     *Entity
	Principal     *Entity
	DependentCols []*Column
	PrincipalCols []*Column
	Required      bool
	Unique        bool
}

type Through struct {
	Entity *Entity
	// Columns on the join entity pointing at the target entity
	Cols []*Column
	// Target entity columns referenced by Cols
	Target []*Column
}

// Rel is a navigation from one entity to another. Left holds the columns
// on the From entity, Right the matching columns on To (or on the join
// entity when Type is RelSkip).
type Rel struct {
	Type      RelType
	Name      string
	From      *Entity
	To        *Entity
	Left      []*Column
	Right     []*Column
	Through   *Through
	FK        *ForeignKey
	Dependent bool
	Inverse   *Rel
	edgeID    int32
}

// Required reports whether every From row is guaranteed a matching To row
// which is only true when walking a required foreign key towards its principal.
func (r *Rel) Required() bool {
	return r.Type == RelReference && r.Dependent && r.FK != nil && r.FK.Required
}

func (r *Rel) Recursive() bool {
	return r.From == r.To
}

func (r *Rel) String() string {
	return fmt.Sprintf("%s.%s (%s -> %s)", r.From.Name, r.Name, r.Type, r.To.Name)
}

type Model struct {
	Schema   string
	entities []*Entity
	em       map[string]*Entity
	g        *util.Graph
	edges    map[int32]*Rel
	fks      []*ForeignKey
}

func (m *Model) Entities() []*Entity {
	return m.entities
}

// ForeignKeys returns every foreign key in declaration order.
func (m *Model) ForeignKeys() []*ForeignKey {
	return m.fks
}

func (m *Model) Entity(name string) (*Entity, error) {
	if e, ok := m.em[fold(name)]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoEntity, name)
}

// FindPath returns the lightest chain of navigations that leads from one
// entity to another.
func (m *Model) FindPath(from, to string) ([]*Rel, error) {
	fe, err := m.Entity(from)
	if err != nil {
		return nil, err
	}

	te, err := m.Entity(to)
	if err != nil {
		return nil, err
	}

	edges := m.g.ShortestPath(fe.ID, te.ID)
	if len(edges) == 0 {
		return nil, fmt.Errorf("%w: %s -> %s", ErrPathNotFound, fe.Name, te.Name)
	}

	path := make([]*Rel, 0, len(edges))
	for _, e := range edges {
		path = append(path, m.edges[e.ID])
	}
	return path, nil
}

func (e *Entity) Column(name string) (*Column, error) {
	if i, ok := e.colMap[fold(name)]; ok {
		return &e.Columns[i], nil
	}
	return nil, fmt.Errorf("column not found: %s.%s", e.Name, name)
}

// Rel looks up a navigation (reference, collection or skip) by name.
func (e *Entity) Rel(name string) (*Rel, error) {
	if r, ok := e.rels[fold(name)]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("navigation not found: %s.%s", e.Name, name)
}

func (e *Entity) Rels() []*Rel {
	return e.relList
}

func (e *Entity) IsKey(cols []*Column) bool {
	if len(cols) != len(e.Key) {
		return false
	}
	for i := range cols {
		if cols[i] != e.Key[i] {
			return false
		}
	}
	return true
}

func (e *Entity) String() string {
	if e.Schema != "" {
		return e.Schema + "." + e.Table
	}
	return e.Table
}

func (c *Column) String() string {
	return c.Entity + "." + c.Name
}

func colNames(cols []*Column) string {
	var sb strings.Builder
	for i, c := range cols {
		if i != 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Name)
	}
	return sb.String()
}
