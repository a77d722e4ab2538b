package sdata

import (
	"errors"
	"fmt"

	"github.com/navql/navql/core/internal/util"
)

var (
	ErrPathNotFound = errors.New("path not found")
	ErrNoKey        = errors.New("entity has no key")
	ErrNoEntity     = errors.New("entity not found")
)

const (
	weightReference  = 1
	weightCollection = 2
	weightSkip       = 3
)

// NewModel builds the navigation graph for a model. Entities are added
// first, then the foreign keys of every entity and finally the skip
// navigations that need both foreign keys of their join entity.
func NewModel(info *ModelInfo) (*Model, error) {
	m := &Model{
		Schema: info.Schema,
		em:     make(map[string]*Entity, len(info.Entities)*2),
		g:      util.NewGraph(),
		edges:  make(map[int32]*Rel),
	}

	for i := range info.Entities {
		if err := m.addEntity(&info.Entities[i]); err != nil {
			return nil, err
		}
	}

	for i := range info.Entities {
		ei := &info.Entities[i]
		for n := range ei.ForeignKeys {
			if err := m.addForeignKey(ei, &ei.ForeignKeys[n]); err != nil {
				return nil, err
			}
		}
	}

	for i := range info.Entities {
		ei := &info.Entities[i]
		for n := range ei.SkipNavigations {
			if err := m.addSkip(ei, &ei.SkipNavigations[n]); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Model) addEntity(ei *EntityInfo) error {
	if ei.Name == "" {
		return errors.New("entity name is required")
	}

	if _, ok := m.em[fold(ei.Name)]; ok {
		return fmt.Errorf("duplicate entity: %s", ei.Name)
	}

	e := &Entity{
		Name:   ei.Name,
		Table:  ei.Table,
		Schema: ei.Schema,
		colMap: make(map[string]int, len(ei.Columns)),
		rels:   make(map[string]*Rel),
	}

	if e.Table == "" {
		e.Table = ei.Name
	}
	if e.Schema == "" {
		e.Schema = m.Schema
	}

	// key columns lead the column list in key order
	cols := make([]Column, 0, len(ei.Columns))
	for _, c := range ei.Columns {
		if c.Key {
			cols = append(cols, Column{Name: c.Name, Type: c.Type, Key: true})
		}
	}
	for _, c := range ei.Columns {
		if !c.Key {
			cols = append(cols, Column{Name: c.Name, Type: c.Type, Nullable: c.Nullable})
		}
	}

	if len(cols) == 0 {
		return fmt.Errorf("entity %s has no columns", e.Name)
	}

	e.Columns = cols
	for i := range e.Columns {
		c := &e.Columns[i]
		c.ID = i
		c.Entity = e.Name

		k := fold(c.Name)
		if _, ok := e.colMap[k]; ok {
			return fmt.Errorf("duplicate column: %s.%s", e.Name, c.Name)
		}
		e.colMap[k] = i

		if c.Key {
			e.Key = append(e.Key, c)
		}
	}

	if len(e.Key) == 0 {
		return fmt.Errorf("%w: %s", ErrNoKey, e.Name)
	}

	e.ID = m.g.AddNode()
	m.entities = append(m.entities, e)
	m.em[fold(e.Name)] = e

	if tk := fold(e.Table); tk != fold(e.Name) {
		if _, ok := m.em[tk]; !ok {
			m.em[tk] = e
		}
	}
	return nil
}

func (m *Model) addForeignKey(ei *EntityInfo, fi *ForeignKeyInfo) error {
	dep, err := m.Entity(ei.Name)
	if err != nil {
		return err
	}

	prin, err := m.Entity(fi.References)
	if err != nil {
		return fmt.Errorf("foreign key on %s: %w", dep.Name, err)
	}

	if len(fi.Columns) == 0 {
		return fmt.Errorf("foreign key on %s has no columns", dep.Name)
	}

	fk := &ForeignKey{
		Name:      fi.Name,
		Dependent: dep,
		Principal: prin,
		Unique:    fi.Unique,
		Required:  true,
	}

	for _, cn := range fi.Columns {
		c, err := dep.Column(cn)
		if err != nil {
			return err
		}
		if c.Nullable {
			fk.Required = false
		}
		fk.DependentCols = append(fk.DependentCols, c)
	}

	if fi.Required != nil {
		fk.Required = *fi.Required
	}

	if len(fi.RefColumns) == 0 {
		fk.PrincipalCols = prin.Key
	} else {
		for _, cn := range fi.RefColumns {
			c, err := prin.Column(cn)
			if err != nil {
				return err
			}
			fk.PrincipalCols = append(fk.PrincipalCols, c)
		}
	}

	if len(fk.PrincipalCols) != len(fk.DependentCols) {
		return fmt.Errorf("foreign key %s(%s) does not match %s(%s)",
			dep.Name, colNames(fk.DependentCols),
			prin.Name, colNames(fk.PrincipalCols))
	}

	if fk.Name == "" {
		fk.Name = "FK_" + dep.Table + "_" + prin.Table + "_" + fk.DependentCols[0].Name
	}
	m.fks = append(m.fks, fk)

	var r1, r2 *Rel

	if fi.Navigation != noNavigation {
		r1 = &Rel{
			Type:      RelReference,
			Name:      fi.Navigation,
			From:      dep,
			To:        prin,
			Left:      fk.DependentCols,
			Right:     fk.PrincipalCols,
			FK:        fk,
			Dependent: true,
		}
		if r1.Name == "" {
			r1.Name = referenceName(fk)
		}
		if err := m.addRel(r1, weightReference); err != nil {
			return err
		}
	}

	if fi.Inverse != noNavigation {
		r2 = &Rel{
			Type:  RelCollection,
			Name:  fi.Inverse,
			From:  prin,
			To:    dep,
			Left:  fk.PrincipalCols,
			Right: fk.DependentCols,
			FK:    fk,
		}
		if fk.Unique {
			r2.Type = RelReference
		}
		if r2.Name == "" {
			r2.Name = inverseName(fk, r1)
		}

		w := int32(weightCollection)
		if fk.Unique {
			w = weightReference
		}
		if err := m.addRel(r2, w); err != nil {
			return err
		}
	}

	if r1 != nil && r2 != nil {
		r1.Inverse = r2
		r2.Inverse = r1
	}
	return nil
}

func (m *Model) addSkip(ei *EntityInfo, si *SkipInfo) error {
	from, err := m.Entity(ei.Name)
	if err != nil {
		return err
	}

	if r, ok := from.rels[fold(si.Name)]; ok && r.Type == RelSkip && r.Inverse != nil {
		// already created as the inverse of the other side
		return nil
	}

	to, err := m.Entity(si.Target)
	if err != nil {
		return fmt.Errorf("skip navigation %s.%s: %w", from.Name, si.Name, err)
	}

	join, err := m.Entity(si.Through)
	if err != nil {
		return fmt.Errorf("skip navigation %s.%s: %w", from.Name, si.Name, err)
	}

	left, right, err := joinKeys(m, join, from, to, si.Columns)
	if err != nil {
		return fmt.Errorf("skip navigation %s.%s: %w", from.Name, si.Name, err)
	}
	join.Join = true

	r1 := newSkipRel(si.Name, from, to, join, left, right)
	if err := m.addRel(r1, weightSkip); err != nil {
		return err
	}

	if si.Inverse == "" || si.Inverse == noNavigation {
		return nil
	}

	if r, ok := to.rels[fold(si.Inverse)]; ok {
		if r.Type != RelSkip || r.Through.Entity != join {
			return fmt.Errorf("skip navigation %s.%s: inverse %s is not a skip navigation through %s",
				from.Name, si.Name, si.Inverse, join.Name)
		}
		r1.Inverse, r.Inverse = r, r1
		return nil
	}

	r2 := newSkipRel(si.Inverse, to, from, join, right, left)
	if err := m.addRel(r2, weightSkip); err != nil {
		return err
	}
	r1.Inverse, r2.Inverse = r2, r1
	return nil
}

func newSkipRel(name string, from, to, join *Entity, left, right *ForeignKey) *Rel {
	return &Rel{
		Type:  RelSkip,
		Name:  name,
		From:  from,
		To:    to,
		Left:  left.PrincipalCols,
		Right: left.DependentCols,
		Through: &Through{
			Entity: join,
			Cols:   right.DependentCols,
			Target: right.PrincipalCols,
		},
	}
}

// joinKeys picks the two foreign keys of the join entity, the one pointing
// at from and the one pointing at to.
func joinKeys(m *Model, join, from, to *Entity, cols []string) (*ForeignKey, *ForeignKey, error) {
	var left, right *ForeignKey

	for _, fk := range m.foreignKeys(join) {
		switch {
		case left == nil && fk.Principal == from && (len(cols) == 0 || sameColumns(fk.DependentCols, cols)):
			left = fk
		case right == nil && fk.Principal == to:
			right = fk
		}
	}

	if left == nil || right == nil {
		return nil, nil, fmt.Errorf("join entity %s needs foreign keys to %s and %s",
			join.Name, from.Name, to.Name)
	}
	return left, right, nil
}

func (m *Model) foreignKeys(e *Entity) []*ForeignKey {
	var fks []*ForeignKey
	for _, fk := range m.fks {
		if fk.Dependent == e {
			fks = append(fks, fk)
		}
	}
	return fks
}

func sameColumns(cols []*Column, names []string) bool {
	if len(cols) != len(names) {
		return false
	}
	for i := range cols {
		if fold(cols[i].Name) != fold(names[i]) {
			return false
		}
	}
	return true
}

func (m *Model) addRel(r *Rel, weight int32) error {
	k := fold(r.Name)

	if _, ok := r.From.rels[k]; ok {
		return fmt.Errorf("duplicate navigation: %s.%s", r.From.Name, r.Name)
	}
	if _, ok := r.From.colMap[k]; ok {
		return fmt.Errorf("navigation %s.%s conflicts with a column", r.From.Name, r.Name)
	}

	id, err := m.g.AddEdge(r.From.ID, r.To.ID, weight, r.Name)
	if err != nil {
		return err
	}
	r.edgeID = id

	r.From.rels[k] = r
	r.From.relList = append(r.From.relList, r)
	m.edges[id] = r
	return nil
}
