package stdlib

import (
	"gopkg.in/yaml.v3"

	"github.com/funvibe/kiln/internal/vm"
)

func openYAML(machine *vm.VM, lib *vm.ObjLibrary) error {
	machine.ExportNative(lib, "decode", 1, yamlDecode)
	machine.ExportNative(lib, "encode", 1, yamlEncode)
	return nil
}

// yamlDecode parses a YAML document. Mappings become tables, sequences
// arrays and scalars numbers, strings, booleans or nil.
func yamlDecode(machine *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
	src, err := vm.ArgString("yaml.decode", args, 0)
	if err != nil {
		return vm.NilVal(), err
	}
	var data any
	if err := yaml.Unmarshal([]byte(src), &data); err != nil {
		return vm.NilVal(), vm.HostError("yaml.decode: %s", err)
	}
	result, err := machine.FromGo(data)
	if err != nil {
		return vm.NilVal(), vm.HostError("yaml.decode: %s", err)
	}
	return result, nil
}

func yamlEncode(machine *vm.VM, _ vm.Value, args []vm.Value) (vm.Value, error) {
	data, err := vm.ToGo(args[0])
	if err != nil {
		return vm.NilVal(), vm.HostError("yaml.encode: %s", err)
	}
	out, err := yaml.Marshal(data)
	if err != nil {
		return vm.NilVal(), vm.HostError("yaml.encode: %s", err)
	}
	return machine.StringVal(string(out)), nil
}
