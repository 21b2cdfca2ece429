// Package stdlib holds the statically linked host libraries scripts reach
// with import("@name").
package stdlib

import (
	"github.com/tliron/commonlog"

	"github.com/funvibe/kiln/internal/vm"
)

var log = commonlog.GetLogger("kiln.stdlib")

// Libraries maps each bundled library name to its initializer.
var Libraries = map[string]vm.LibraryInit{
	"yaml":   openYAML,
	"cbor":   openCBOR,
	"uuid":   openUUID,
	"sqlite": openSQLite,
}

// Register makes every bundled library importable from machine.
func Register(machine *vm.VM) {
	for name, init := range Libraries {
		machine.RegisterLibrary(name, init)
	}
}
