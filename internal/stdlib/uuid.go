package stdlib

import (
	"github.com/google/uuid"

	"github.com/funvibe/kiln/internal/vm"
)

func openUUID(machine *vm.VM, lib *vm.ObjLibrary) error {
	machine.ExportNative(lib, "new", 0, func(machine *vm.VM, _ vm.Value, _ []vm.Value) (vm.Value, error) {
		return machine.StringVal(uuid.NewString()), nil
	})
	machine.ExportNative(lib, "valid", 1, func(machine *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
		s, ok := args[0].AsString()
		if !ok {
			return vm.BoolVal(false), nil
		}
		return vm.BoolVal(uuid.Validate(s.Chars) == nil), nil
	})
	return nil
}
