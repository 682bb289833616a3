package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"plugin"
)

// nativeHandle is a Handle backed by a Go plugin: the idiomatic Go stand-in
// for spec.md's "native dynamic library (cdylib)" mode, since Go has no
// direct cdylib-compilation story but does have its own dynamic-loading
// primitive (`go build -buildmode=plugin` + `plugin.Open`/`Lookup`). The
// library registry's "handle keeps the symbol valid" idiom is preserved
// verbatim: nativeHandle holds the *plugin.Plugin for the function's entire
// lifetime, since the Go runtime does not support unloading a plugin — for
// that reason Release only removes the temporary build directory and leaves
// the plugin loaded.
type nativeHandle struct {
	plugin *plugin.Plugin
	symbol ComputeFunc
	dir    string
}

// ComputeFunc is the symbol every native plugin must export under the name
// "Compute": a plain Go function over already-decoded argument values.
type ComputeFunc func(args []any) (any, error)

// CompileNative materialises src (a complete Go source file defining
// `func Compute(args []any) (any, error)` in package main) into a temporary
// module, builds it with `go build -buildmode=plugin`, and loads the
// resulting shared object. buildDir is the parent directory temporary build
// trees are created under; an empty buildDir uses os.TempDir.
func CompileNative(src, buildDir string) (Handle, error) {
	if buildDir == "" {
		buildDir = os.TempDir()
	}
	dir, err := os.MkdirTemp(buildDir, "pddfr-native-*")
	if err != nil {
		return nil, fmt.Errorf("sandbox: creating native build dir: %w", err)
	}

	srcPath := filepath.Join(dir, "compute.go")
	if err := os.WriteFile(srcPath, []byte(src), 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("sandbox: writing native source: %w", err)
	}

	soPath := filepath.Join(dir, "compute.so")
	cmd := exec.Command("go", "build", "-buildmode=plugin", "-o", soPath, srcPath)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOCACHE="+filepath.Join(dir, "gocache"))
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("sandbox: building native plugin: %w: %s", err, out)
	}

	p, err := plugin.Open(soPath)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("sandbox: opening native plugin: %w", err)
	}

	sym, err := p.Lookup("Compute")
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("sandbox: native plugin does not export Compute: %w", err)
	}

	fn, ok := sym.(func([]any) (any, error))
	if !ok {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("sandbox: Compute has the wrong signature, expected func([]any) (any, error)")
	}

	return &nativeHandle{plugin: p, symbol: fn, dir: dir}, nil
}

func (h *nativeHandle) Invoke(args []any) (any, error) {
	return h.symbol(args)
}

// Release removes the temporary build directory. The loaded plugin itself is
// never unloaded (Go provides no mechanism to do so); keeping h.plugin
// referenced for the handle's lifetime is what keeps the Compute symbol
// valid, matching the teacher's library-handle-keeps-symbol-valid idiom.
func (h *nativeHandle) Release() error {
	if err := os.RemoveAll(h.dir); err != nil {
		return fmt.Errorf("sandbox: removing native build dir %s: %w", h.dir, err)
	}
	return nil
}
