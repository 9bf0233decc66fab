package orm

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Model is what the registry hands out: a named accessor that can turn
// ids into records inside a transaction.
type Model interface {
	// Name returns the dotted model name this registers under.
	Name() string

	// Browse loads the given ids inside tx and returns the records in
	// the same order as the ids. Any missing id is an error wrapping
	// ErrNotFound: callers asked for a specific record and silence
	// about a hole would corrupt positional access.
	Browse(ctx context.Context, tx *Tx, ids []int64) ([]*Record, error)
}

// TaskModel is implemented by models that execute queued background
// tasks. The method string comes from the queue row and names which of
// the model's task entry points to run.
type TaskModel interface {
	Model

	ExecuteTask(ctx context.Context, tx *Tx, method string, data []byte) error
}

// Pool is the model registry. Models register once at boot; lookups
// happen on every materialized URL parameter, so reads take the cheap
// path of an RWMutex.
type Pool struct {
	mu     sync.RWMutex
	models map[string]Model
}

func NewPool() *Pool {
	return &Pool{models: map[string]Model{}}
}

// Register adds a model under its Name. Registering the same name twice
// is a programming error and panics, the same way http.HandleFunc does
// for duplicate patterns.
func (p *Pool) Register(m Model) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := m.Name()
	if _, dup := p.models[name]; dup {
		panic("orm: model registered twice: " + name)
	}

	p.models[name] = m
}

// Get returns the model registered under name, or an error wrapping
// ErrUnknownModel.
func (p *Pool) Get(name string) (Model, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	m, ok := p.models[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownModel, name)
	}

	return m, nil
}

// Names returns the registered model names, sorted, for logs and the
// health payload.
func (p *Pool) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.models))
	for name := range p.models {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
