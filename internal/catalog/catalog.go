// Package catalog compiles CUE schema files into a model.Registry.
//
// A schema declares entity types under the top-level "entity" struct, in
// the order they should be registered:
//
//	entity: Author: {
//		fields: name: string
//	}
//
//	entity: Book: {
//		key: "serial" // or "uuid"
//		fields: {
//			title:    string
//			pages:    int | null
//			author:   {ref: "Author", on_delete: "cascade"}
//			reviewer: {ref: "Author", on_delete: "set_null"} | null
//		}
//	}
//
// Field kinds come from the CUE type: string, int, float or number, bool.
// A struct with a "ref" label declares a foreign key. A disjunction with
// null marks the field nullable.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/bulkstep/internal/model"
)

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile builds a registry from the "entity" struct of a CUE value.
func Compile(v cue.Value) (*model.Registry, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, &CompileError{
			Field:   "entity",
			Message: "no entity types declared",
			Pos:     v.Pos(),
		}
	}

	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var types []*model.EntityType
	for iter.Next() {
		t, err := CompileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if len(types) == 0 {
		return nil, &CompileError{
			Field:   "entity",
			Message: "no entity types declared",
			Pos:     entitiesVal.Pos(),
		}
	}

	return model.NewRegistry(types...)
}

// CompileEntity parses one entity declaration.
func CompileEntity(name string, v cue.Value) (*model.EntityType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	t := &model.EntityType{Name: name}
	path := "entity." + name

	if tableVal := v.LookupPath(cue.ParsePath("table")); tableVal.Exists() {
		table, err := tableVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t.Table = table
	}

	if keyVal := v.LookupPath(cue.ParsePath("key")); keyVal.Exists() {
		key, err := keyVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		switch model.KeyKind(key) {
		case model.KeySerial, model.KeyUUID:
			t.Key = model.KeyKind(key)
		default:
			return nil, &CompileError{
				Field:   path + ".key",
				Message: fmt.Sprintf("key must be %q or %q, got %q", model.KeySerial, model.KeyUUID, key),
				Pos:     keyVal.Pos(),
			}
		}
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return t, nil
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		f, fk, err := compileField(path+".fields."+iter.Label(), iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		t.Fields = append(t.Fields, f)
		if fk != nil {
			t.ForeignKeys = append(t.ForeignKeys, *fk)
		}
	}

	return t, nil
}

// compileField maps a CUE field to a model field, plus its foreign key when
// the field is a reference.
func compileField(path, name string, v cue.Value) (model.Field, *model.ForeignKey, error) {
	kind := v.IncompleteKind()
	f := model.Field{Name: name, Nullable: kind&cue.NullKind != 0}
	kind &^= cue.NullKind

	switch kind {
	case cue.StringKind:
		f.Kind = model.KindString
	case cue.IntKind:
		f.Kind = model.KindInt
	case cue.FloatKind, cue.NumberKind:
		f.Kind = model.KindFloat
	case cue.BoolKind:
		f.Kind = model.KindBool
	case cue.StructKind:
		fk, nullable, err := compileRef(path, name, v)
		if err != nil {
			return f, nil, err
		}
		f.Kind = model.KindRef
		f.Nullable = f.Nullable || nullable
		return f, fk, nil
	default:
		return f, nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	return f, nil, nil
}

func compileRef(path, name string, v cue.Value) (*model.ForeignKey, bool, error) {
	// Strip the null branch of a disjunction before looking inside.
	if op, args := v.Expr(); op == cue.OrOp {
		for _, arg := range args {
			if arg.IncompleteKind() == cue.StructKind {
				v = arg
				break
			}
		}
	}

	refVal := v.LookupPath(cue.ParsePath("ref"))
	if !refVal.Exists() {
		return nil, false, &CompileError{
			Field:   path,
			Message: "struct fields must declare a ref target",
			Pos:     v.Pos(),
		}
	}
	target, err := refVal.String()
	if err != nil {
		return nil, false, formatCUEError(err)
	}

	fk := &model.ForeignKey{Field: name, Target: target, OnDelete: model.OnDeleteCascade}
	if odVal := v.LookupPath(cue.ParsePath("on_delete")); odVal.Exists() {
		s, err := odVal.String()
		if err != nil {
			return nil, false, formatCUEError(err)
		}
		od, err := model.ParseOnDelete(s)
		if err != nil {
			return nil, false, &CompileError{Field: path + ".on_delete", Message: err.Error(), Pos: odVal.Pos()}
		}
		fk.OnDelete = od
	}

	nullable := false
	if nVal := v.LookupPath(cue.ParsePath("nullable")); nVal.Exists() {
		b, err := nVal.Bool()
		if err != nil {
			return nil, false, formatCUEError(err)
		}
		nullable = b
	}
	return fk, nullable, nil
}

// CompileString compiles schema source. filename is used in positions.
func CompileString(src, filename string) (*model.Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// LoadFile compiles a single schema file.
func LoadFile(path string) (*model.Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return CompileString(string(src), path)
}

// LoadDir compiles the CUE package in dir.
func LoadDir(dir string) (*model.Registry, error) {
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan schema directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(v)
}

// Load compiles a schema file or directory.
func Load(path string) (*model.Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// FindCUEFiles returns the .cue files directly inside dir.
func FindCUEFiles(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.cue"))
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
