// Package testutil provides fixtures and an in-memory store shared by the
// package tests.
package testutil

import (
	"github.com/roach88/bulkstep/internal/model"
)

// Fixture type names.
const (
	ModelA    = "ModelA"
	ModelB    = "ModelB"
	ModelC    = "ModelC"
	Author    = "Author"
	Publisher = "Publisher"
	Book      = "Book"
	Review    = "Review"
)

// Registry returns a fresh registry of the fixture types:
//
//	ModelA(str_field, int_field)
//	ModelB(model_a → ModelA cascade)
//	ModelC(model_b → ModelB cascade, bool_field)
//	Author(name)  Publisher(name)
//	Book(title, author → Author cascade, publisher → Publisher restrict)
//	Review(text, book → Book cascade)
//
// Each call builds new EntityType values, so tests may not share state
// through them.
func Registry() *model.Registry {
	return model.MustRegistry(
		&model.EntityType{
			Name: ModelA,
			Fields: []model.Field{
				{Name: "str_field", Kind: model.KindString},
				{Name: "int_field", Kind: model.KindInt},
			},
		},
		&model.EntityType{
			Name:        ModelB,
			Fields:      []model.Field{{Name: "model_a", Kind: model.KindRef}},
			ForeignKeys: []model.ForeignKey{{Field: "model_a", Target: ModelA, OnDelete: model.OnDeleteCascade}},
		},
		&model.EntityType{
			Name: ModelC,
			Fields: []model.Field{
				{Name: "model_b", Kind: model.KindRef},
				{Name: "bool_field", Kind: model.KindBool},
			},
			ForeignKeys: []model.ForeignKey{{Field: "model_b", Target: ModelB, OnDelete: model.OnDeleteCascade}},
		},
		&model.EntityType{
			Name:   Author,
			Fields: []model.Field{{Name: "name", Kind: model.KindString}},
		},
		&model.EntityType{
			Name:   Publisher,
			Fields: []model.Field{{Name: "name", Kind: model.KindString}},
		},
		&model.EntityType{
			Name: Book,
			Fields: []model.Field{
				{Name: "title", Kind: model.KindString},
				{Name: "author", Kind: model.KindRef},
				{Name: "publisher", Kind: model.KindRef},
			},
			ForeignKeys: []model.ForeignKey{
				{Field: "author", Target: Author, OnDelete: model.OnDeleteCascade},
				{Field: "publisher", Target: Publisher, OnDelete: model.OnDeleteRestrict},
			},
		},
		&model.EntityType{
			Name: Review,
			Fields: []model.Field{
				{Name: "text", Kind: model.KindString},
				{Name: "book", Kind: model.KindRef},
			},
			ForeignKeys: []model.ForeignKey{{Field: "book", Target: Book, OnDelete: model.OnDeleteCascade}},
		},
	)
}

// NewA builds a transient ModelA.
func NewA(reg *model.Registry, s string, n int64) *model.Entity {
	return model.NewEntity(reg.Get(ModelA), map[string]model.Value{
		"str_field": model.String(s),
		"int_field": model.Int(n),
	})
}

// NewB builds a transient ModelB referencing a.
func NewB(reg *model.Registry, a *model.Entity) *model.Entity {
	return model.NewEntity(reg.Get(ModelB), map[string]model.Value{"model_a": a.Ref()})
}

// NewC builds a transient ModelC referencing b.
func NewC(reg *model.Registry, b *model.Entity, flag bool) *model.Entity {
	return model.NewEntity(reg.Get(ModelC), map[string]model.Value{
		"model_b":    b.Ref(),
		"bool_field": model.Bool(flag),
	})
}

// Entities builds n transient ModelA values with int_field 0..n-1.
func Entities(reg *model.Registry, n int) []*model.Entity {
	out := make([]*model.Entity, n)
	for i := range out {
		out[i] = NewA(reg, "row", int64(i))
	}
	return out
}
