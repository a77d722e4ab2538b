package core

import (
	"context"

	"github.com/navql/navql/core/internal/migrate"
	"github.com/navql/navql/core/internal/sdata"
	"github.com/pkg/errors"
)

// Migrate creates the tables and columns of the model missing from the
// database and returns the statements it ran. With dryRun set nothing is
// run.
func (n *NavQL) Migrate(c context.Context, dryRun bool) ([]string, error) {
	s := n.state()

	if s.db == nil {
		return nil, errors.New("no database to migrate")
	}

	c, span := s.startSpan(c, "navql.migrate")
	defer span.End()

	schema := s.conf.Schema
	if schema == "" {
		schema = s.info.Schema
	}

	current, err := sdata.GetModelInfo(c, s.db, schema, nil)
	if err != nil {
		spanError(span, err)
		return nil, errors.Wrap(err, "introspecting database")
	}

	ops := migrate.MigrateSchema(current, s.info)
	if dryRun || len(ops) == 0 {
		return ops, nil
	}

	tx, err := s.db.BeginTx(c, nil)
	if err != nil {
		spanError(span, err)
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	for _, op := range ops {
		s.log.Infow("migrate", "sql", op)
		if _, err := tx.ExecContext(c, op); err != nil {
			spanError(span, err)
			return nil, errors.Wrapf(err, "migrating: %s", op)
		}
	}

	if err := tx.Commit(); err != nil {
		spanError(span, err)
		return nil, err
	}
	return ops, nil
}
