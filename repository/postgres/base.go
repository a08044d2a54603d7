package postgres

import (
	"github.com/iron-fish/ironfish-bridge/db"
)

type basePostgresRepo struct {
	table string
	db    *db.DB
}

func newBasePostgresRepo(table string, db *db.DB) *basePostgresRepo {
	return &basePostgresRepo{
		table: table,
		db:    db,
	}
}

func nullableString[T ~string](v *T) interface{} {
	if v == nil {
		return nil
	}
	return string(*v)
}
