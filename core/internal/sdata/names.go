package sdata

import (
	"strings"

	"github.com/gobuffalo/flect"
	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// fold is used for every entity, column and navigation lookup so names
// match the way SQL Server's default collation compares identifiers.
func fold(s string) string {
	return folder.String(s)
}

var idSuffixes = []string{"_Id", "_id", "_ID", "Id", "ID"}

// referenceName names the navigation on the dependent side of a foreign
// key: the single key column without its id suffix or else the principal.
func referenceName(fk *ForeignKey) string {
	if len(fk.DependentCols) == 1 {
		n := fk.DependentCols[0].Name
		for _, sfx := range idSuffixes {
			if strings.HasSuffix(n, sfx) && len(n) > len(sfx) {
				return n[:len(n)-len(sfx)]
			}
		}
	}
	return fk.Principal.Name
}

// inverseName names the navigation on the principal side, singular for a
// unique foreign key and plural otherwise. When the principal already
// uses that name the dependent navigation is appended.
func inverseName(fk *ForeignKey, ref *Rel) string {
	var n string
	if fk.Unique {
		n = flect.Singularize(fk.Dependent.Name)
	} else {
		n = flect.Pluralize(fk.Dependent.Name)
	}

	if _, ok := fk.Principal.rels[fold(n)]; ok && ref != nil {
		n += ref.Name
	}
	return n
}

// TableName returns the conventional table name for an entity.
func TableName(entity string) string {
	return flect.Pluralize(entity)
}
