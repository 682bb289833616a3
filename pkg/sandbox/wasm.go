package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// CompileWAT sanitises src, compiles it to a single-function WASM module via
// the restricted-opcode encoder in watcompile.go, and instantiates it on a
// fresh wazero runtime. useWASI additionally registers the no-op
// wasi_snapshot_preview1 stub host module from wasi.go, which is spec.md
// §4.3's sandboxed-WASM mode: a module whose imports resolve against the
// stub observes a zero return and no host effect from any WASI call,
// instead of wazero's real preview1 implementation performing genuine host
// I/O. The opcode grammar this encoder produces never emits import
// sections itself, so this only matters for externally-authored WASM that
// declares these imports.
func CompileWAT(ctx context.Context, src string, useWASI bool) (Handle, error) {
	clean, err := Sanitise(src)
	if err != nil {
		return nil, err
	}
	root, err := parseSexpr(clean)
	if err != nil {
		return nil, err
	}
	cf, err := parseWATFunc(root)
	if err != nil {
		return nil, err
	}
	binary, err := encodeModule(cf)
	if err != nil {
		return nil, err
	}
	return compileWASMBytes(ctx, binary, cf.exportName, cf.numParams, cf.hasResult, useWASI)
}

func compileWASMBytes(ctx context.Context, binary []byte, exportName string, numParams int, hasResult, useWASI bool) (Handle, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if useWASI {
		if err := registerStubWASI(ctx, rt); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("sandbox: instantiating stub WASI host module: %w", err)
		}
	}

	compiled, err := rt.CompileModule(ctx, binary)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("sandbox: compiling WASM module: %w", err)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("sandbox: instantiating WASM module: %w", err)
	}

	fn := mod.ExportedFunction(exportName)
	if fn == nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("sandbox: export %q not found after instantiation", exportName)
	}

	return &wasmFuncHandle{ctx: ctx, runtime: rt, exportName: exportName, fn: fn, numParams: numParams, hasResult: hasResult}, nil
}

// wasmFuncHandle is the concrete Handle returned by CompileWAT.
type wasmFuncHandle struct {
	ctx        context.Context
	runtime    wazero.Runtime
	exportName string
	fn         interface {
		Call(ctx context.Context, params ...uint64) ([]uint64, error)
	}
	numParams int
	hasResult bool
}

func (h *wasmFuncHandle) Invoke(args []any) (any, error) {
	if len(args) != h.numParams {
		return nil, fmt.Errorf("sandbox: expected %d arguments, got %d", h.numParams, len(args))
	}
	params := make([]uint64, len(args))
	for i, a := range args {
		n, err := toI32(a)
		if err != nil {
			return nil, fmt.Errorf("sandbox: argument %d: %w", i, err)
		}
		params[i] = uint64(uint32(n))
	}
	results, err := h.fn.Call(h.ctx, params...)
	if err != nil {
		return nil, classifyInvokeError(h.exportName, err)
	}
	if !h.hasResult {
		return nil, nil
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("sandbox: function declared a result but returned none")
	}
	return int64(int32(uint32(results[0]))), nil
}

func (h *wasmFuncHandle) Release() error {
	return h.runtime.Close(h.ctx)
}

func toI32(v any) (int32, error) {
	switch n := v.(type) {
	case int64:
		return int32(n), nil
	case int32:
		return n, nil
	case float64:
		return int32(n), nil
	default:
		return 0, fmt.Errorf("unsupported argument type %T for an i32 parameter", v)
	}
}
