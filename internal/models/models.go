// Package models holds the concrete models served through the model
// pool: users, groups, and languages. Each model knows how to load its
// records inside a transaction; the write paths raise domain errors
// for rule violations and queue follow-up work instead of doing it
// inline.
package models

import (
	"github.com/ormscope/ormscope/internal/orm"
)

// Registry holds the concrete model instances so callers that need
// more than the pool's Model interface (handlers, the formatter) can
// reach the typed APIs.
type Registry struct {
	Users  *UserModel
	Groups *GroupModel
	Langs  *LangModel
}

// RegisterAll wires every model into the runtime's pool. Called once
// at boot, before the first request; the pool panics on duplicate
// registration so a double call fails loudly.
func RegisterAll(rt *orm.Runtime) *Registry {
	r := &Registry{
		Users:  NewUserModel(rt.Cache()),
		Groups: &GroupModel{},
		Langs:  NewLangModel(rt.Cache()),
	}

	pool := rt.Pool()
	pool.Register(r.Users)
	pool.Register(r.Groups)
	pool.Register(r.Langs)

	return r
}
