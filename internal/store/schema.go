package store

import (
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/roach88/bulkstep/internal/model"
)

// quote quotes an identifier for SQLite.
func quote(name string) string {
	return sqlbuilder.SQLite.Quote(name)
}

// createTableSQL builds the CREATE TABLE statement backing t.
func createTableSQL(reg *model.Registry, t *model.EntityType) (string, error) {
	ctb := sqlbuilder.SQLite.NewCreateTableBuilder()
	ctb.CreateTable(quote(t.TableName())).IfNotExists()

	switch t.KeyKind() {
	case model.KeySerial:
		ctb.Define(quote(model.KeyField), "INTEGER", "PRIMARY KEY", "AUTOINCREMENT")
	case model.KeyUUID:
		ctb.Define(quote(model.KeyField), "TEXT", "PRIMARY KEY")
	default:
		return "", model.NewConfigurationError("%s: unknown key kind %q", t.Name, t.Key)
	}

	for _, f := range t.Fields {
		colType, err := columnType(reg, t, f)
		if err != nil {
			return "", err
		}
		def := []string{quote(f.Name), colType}
		if !f.Nullable {
			def = append(def, "NOT NULL")
		}
		ctb.Define(def...)
	}

	for _, fk := range t.ForeignKeys {
		target := reg.Get(fk.Target)
		ctb.Define(
			"FOREIGN KEY", "("+quote(fk.Field)+")",
			"REFERENCES", quote(target.TableName())+"("+quote(model.KeyField)+")",
			"ON DELETE", onDeleteSQL(fk.OnDelete),
		)
	}

	query, _ := ctb.Build()
	return query, nil
}

// columnType maps a field kind to a SQLite column type. Reference columns
// take the type of the target's key.
func columnType(reg *model.Registry, t *model.EntityType, f model.Field) (string, error) {
	switch f.Kind {
	case model.KindString:
		return "TEXT", nil
	case model.KindInt:
		return "INTEGER", nil
	case model.KindFloat:
		return "REAL", nil
	case model.KindBool:
		return "BOOLEAN", nil
	case model.KindRef:
		fk, ok := t.ForeignKey(f.Name)
		if !ok {
			return "", model.NewConfigurationError("%s.%s: reference field without foreign key", t.Name, f.Name)
		}
		target, err := reg.Lookup(fk.Target)
		if err != nil {
			return "", err
		}
		if target.KeyKind() == model.KeyUUID {
			return "TEXT", nil
		}
		return "INTEGER", nil
	default:
		return "", fmt.Errorf("%s.%s: unsupported field kind %q", t.Name, f.Name, f.Kind)
	}
}

func onDeleteSQL(p model.OnDelete) string {
	switch p {
	case model.OnDeleteSetNull:
		return "SET NULL"
	case model.OnDeleteRestrict:
		return "RESTRICT"
	case model.OnDeleteNoAction:
		return "NO ACTION"
	default:
		return "CASCADE"
	}
}
