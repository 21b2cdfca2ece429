package stdlib

import (
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/funvibe/kiln/internal/vm"
)

// Canonical encoding keeps output stable for equal tables.
var cborEncMode = sync.OnceValues(func() (cbor.EncMode, error) {
	return cbor.CanonicalEncOptions().EncMode()
})

func openCBOR(machine *vm.VM, lib *vm.ObjLibrary) error {
	if _, err := cborEncMode(); err != nil {
		return err
	}
	machine.ExportNative(lib, "encode", 1, cborEncode)
	machine.ExportNative(lib, "decode", 1, cborDecode)
	return nil
}

// cborEncode returns the encoding as a byte string.
func cborEncode(machine *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
	data, err := vm.ToGo(args[0])
	if err != nil {
		return vm.NilVal(), vm.HostError("cbor.encode: %s", err)
	}
	em, err := cborEncMode()
	if err != nil {
		return vm.NilVal(), vm.HostError("cbor.encode: %s", err)
	}
	out, err := em.Marshal(data)
	if err != nil {
		return vm.NilVal(), vm.HostError("cbor.encode: %s", err)
	}
	return machine.StringVal(string(out)), nil
}

func cborDecode(machine *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
	src, err := vm.ArgString("cbor.decode", args, 0)
	if err != nil {
		return vm.NilVal(), err
	}
	var data any
	if err := cbor.Unmarshal([]byte(src), &data); err != nil {
		return vm.NilVal(), vm.HostError("cbor.decode: %s", err)
	}
	result, err := machine.FromGo(data)
	if err != nil {
		return vm.NilVal(), vm.HostError("cbor.decode: %s", err)
	}
	return result, nil
}
