package host

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"muehle-agent/internal/domain"
	"muehle-agent/pkg/guestsdk"
)

// Validate checks that compiled exports the full muehle table with the
// expected signatures and a linear memory. The returned error lists every
// problem and matches domain.ErrExportMissing and/or
// domain.ErrExportSignature.
func Validate(compiled wazero.CompiledModule) error {
	funcs := compiled.ExportedFunctions()
	var errs []error

	for _, want := range guestsdk.RequiredExports {
		def, ok := funcs[want.Name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s", domain.ErrExportMissing, want.Name))
			continue
		}
		if err := checkSignature(want, def); err != nil {
			errs = append(errs, err)
		}
	}
	for _, want := range guestsdk.OptionalExports {
		if def, ok := funcs[want.Name]; ok {
			if err := checkSignature(want, def); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if _, ok := compiled.ExportedMemories()[guestsdk.ExportMemory]; !ok {
		errs = append(errs, fmt.Errorf("%w: memory", domain.ErrExportMissing))
	}
	return errors.Join(errs...)
}

func checkSignature(want guestsdk.Export, def api.FunctionDefinition) error {
	params, results := toValueTypes(def.ParamTypes()), toValueTypes(def.ResultTypes())
	if slices.Equal(params, want.Params) && slices.Equal(results, want.Results) {
		return nil
	}
	return fmt.Errorf("%w: %s is %s, want %s", domain.ErrExportSignature, want.Name,
		formatSignature(params, results), formatSignature(want.Params, want.Results))
}

func toValueTypes(in []api.ValueType) []guestsdk.ValueType {
	if len(in) == 0 {
		return nil
	}
	out := make([]guestsdk.ValueType, len(in))
	for i, t := range in {
		out[i] = guestsdk.ValueType(t)
	}
	return out
}

func formatSignature(params, results []guestsdk.ValueType) string {
	join := func(ts []guestsdk.ValueType) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = t.String()
		}
		return strings.Join(parts, ",")
	}
	return "(" + join(params) + ")->(" + join(results) + ")"
}
