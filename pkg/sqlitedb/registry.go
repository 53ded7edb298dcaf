package sqlitedb

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("database not found")

// Registry holds the served databases in the order they were configured.
type Registry struct {
	order []string
	dbs   map[string]*DB
}

func NewRegistry() *Registry {
	return &Registry{
		dbs: map[string]*DB{},
	}
}

// Add registers db, names must be unique.
func (r *Registry) Add(db *DB) error {
	if _, ok := r.dbs[db.Name()]; ok {
		return fmt.Errorf("database %s is already registered", db.Name())
	}

	r.order = append(r.order, db.Name())
	r.dbs[db.Name()] = db

	return nil
}

func (r *Registry) Get(name string) (*DB, error) {
	db, ok := r.dbs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	return db, nil
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)

	return names
}

func (r *Registry) All() []*DB {
	dbs := make([]*DB, 0, len(r.order))
	for _, name := range r.order {
		dbs = append(dbs, r.dbs[name])
	}

	return dbs
}

func (r *Registry) Close() error {
	var errs []error

	for _, name := range r.order {
		if err := r.dbs[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}
