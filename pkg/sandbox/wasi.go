package sandbox

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// wasiStubSignature describes one wasi_snapshot_preview1 import this runtime
// is willing to link against: its parameter types and, if any, its single
// i32 errno-style result.
type wasiStubSignature struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// wasiStubs is spec.md §4.3's minimal host-import list: every function a
// sandboxed-WASM-mode module may import, each stubbed to a no-op that
// returns 0 (WASI's errno_success) without touching guest memory or
// performing any real I/O.
var wasiStubs = []wasiStubSignature{
	{"fd_write", i32Params(4), i32Results(1)},
	{"fd_close", i32Params(1), i32Results(1)},
	{"environ_get", i32Params(2), i32Results(1)},
	{"environ_sizes_get", i32Params(2), i32Results(1)},
	{"fd_fdstat_get", i32Params(2), i32Results(1)},
	{"random_get", i32Params(2), i32Results(1)},
	{"clock_time_get", []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeI32}, i32Results(1)},
	{"fd_seek", []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32}, i32Results(1)},
	{"fd_read", i32Params(4), i32Results(1)},
	{"proc_exit", i32Params(1), nil},
}

func i32Params(n int) []api.ValueType {
	p := make([]api.ValueType, n)
	for i := range p {
		p[i] = api.ValueTypeI32
	}
	return p
}

func i32Results(n int) []api.ValueType {
	return i32Params(n)
}

// registerStubWASI installs a wasi_snapshot_preview1 host module on rt whose
// every export is a no-op: it ignores its arguments, touches no guest
// memory, and returns zero result values (0, the errno_success code, for
// everything but proc_exit which returns none). This is deliberately NOT
// wazero's real wasi_snapshot_preview1 package — that implementation
// performs genuine host file/clock/random I/O, which would let a
// sandboxed-WASM-mode module reach outside the sandbox. Stubbing every
// import instead gives spec.md §4.3's isolation invariant: a module that
// imports and calls fd_write (or any of these) observes a zero return and
// produces no host-visible effect.
func registerStubWASI(ctx context.Context, rt wazero.Runtime) error {
	builder := rt.NewHostModuleBuilder("wasi_snapshot_preview1")
	for _, stub := range wasiStubs {
		fn := stub
		goFn := api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			for i := range stack {
				stack[i] = 0
			}
		})
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(goFn, fn.params, fn.results).
			Export(fn.name)
	}
	_, err := builder.Instantiate(ctx)
	return err
}
