package stdlib

import (
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/funvibe/kiln/internal/vm"
)

// dbSize is the payload size accounted per open database.
const dbSize = 256

func openSQLite(machine *vm.VM, lib *vm.ObjLibrary) error {
	machine.ExportClass(lib, vm.NativeClassDef{
		Name:      "Database",
		Size:      dbSize,
		Init:      dbInit,
		InitArity: 1,
		Fallible:  true,
		Free:      dbFree,
		Methods: map[string]vm.NativeMethod{
			"exec":  {Arity: -1, Fn: dbExec},
			"query": {Arity: -1, Fn: dbQuery},
			"close": {Arity: 0, Fn: dbClose},
		},
	})
	return nil
}

// dbInit opens the database at path. A database that cannot be opened
// makes the constructor return nil.
func dbInit(_ *vm.VM, recv vm.Value, args []vm.Value) (vm.Value, error) {
	path, err := vm.ArgString("Database", args, 0)
	if err != nil {
		return vm.NilVal(), err
	}
	db, err := sql.Open("sqlite", path)
	if err == nil {
		err = db.Ping()
	}
	if err != nil {
		log.Infof("cannot open database %s: %s", path, err)
		if db != nil {
			db.Close()
		}
		return vm.NilVal(), nil
	}
	recv.Obj.(*vm.ObjNativeInstance).Payload = db
	return recv, nil
}

func dbFree(inst *vm.ObjNativeInstance) {
	if db, ok := inst.Payload.(*sql.DB); ok {
		log.Debug("closing unreachable database")
		db.Close()
		inst.Payload = nil
	}
}

func openDB(fn string, recv vm.Value) (*sql.DB, error) {
	db, ok := recv.Obj.(*vm.ObjNativeInstance).Payload.(*sql.DB)
	if !ok {
		return nil, vm.HostError("%s: database is closed", fn)
	}
	return db, nil
}

// statement splits the SQL text from its positional parameters.
func statement(fn string, args []vm.Value) (string, []any, error) {
	query, err := vm.ArgString(fn, args, 0)
	if err != nil {
		return "", nil, err
	}
	params := make([]any, 0, len(args)-1)
	for _, a := range args[1:] {
		p, err := vm.ToGo(a)
		if err != nil {
			return "", nil, vm.HostError("%s: %s", fn, err)
		}
		if f, ok := p.(float64); ok && a.IsInteger() {
			p = int64(f)
		}
		params = append(params, p)
	}
	return query, params, nil
}

// dbExec runs a statement and returns the number of affected rows.
func dbExec(machine *vm.VM, recv vm.Value, args []vm.Value) (vm.Value, error) {
	db, err := openDB("Database.exec", recv)
	if err != nil {
		return vm.NilVal(), err
	}
	query, params, err := statement("Database.exec", args)
	if err != nil {
		return vm.NilVal(), err
	}
	res, err := db.ExecContext(machine.Context(), query, params...)
	if err != nil {
		return vm.NilVal(), vm.HostError("Database.exec: %s", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return vm.NilVal(), vm.HostError("Database.exec: %s", err)
	}
	return vm.NumberVal(float64(n)), nil
}

// dbQuery returns the result rows as an array of tables keyed by column.
func dbQuery(machine *vm.VM, recv vm.Value, args []vm.Value) (vm.Value, error) {
	db, err := openDB("Database.query", recv)
	if err != nil {
		return vm.NilVal(), err
	}
	query, params, err := statement("Database.query", args)
	if err != nil {
		return vm.NilVal(), err
	}
	rows, err := db.QueryContext(machine.Context(), query, params...)
	if err != nil {
		return vm.NilVal(), vm.HostError("Database.query: %s", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return vm.NilVal(), vm.HostError("Database.query: %s", err)
	}
	var result []map[string]any
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return vm.NilVal(), vm.HostError("Database.query: %s", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = dest[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return vm.NilVal(), vm.HostError("Database.query: %s", err)
	}
	if result == nil {
		result = []map[string]any{}
	}
	return machine.FromGo(result)
}

func dbClose(_ *vm.VM, recv vm.Value, _ []vm.Value) (vm.Value, error) {
	inst := recv.Obj.(*vm.ObjNativeInstance)
	if db, ok := inst.Payload.(*sql.DB); ok {
		inst.Payload = nil
		if err := db.Close(); err != nil {
			return vm.NilVal(), vm.HostError("Database.close: %s", err)
		}
	}
	return vm.NilVal(), nil
}
