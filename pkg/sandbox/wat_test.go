package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitise_RejectsComments(t *testing.T) {
	_, err := Sanitise(`(module (func $f (export "f") ;; comment
		(param $n i32) (result i32) (return)))`)
	require.Error(t, err)
	var watErr *WATError
	require.ErrorAs(t, err, &watErr)
}

func TestSanitise_RejectsImports(t *testing.T) {
	_, err := Sanitise(`(module (import "env" "log" (func $log (param i32))) (func $f (export "f") (result i32) (return)))`)
	require.Error(t, err)
}

func TestSanitise_RejectsDisallowedOpcode(t *testing.T) {
	_, err := Sanitise(`(module (func $f (export "f") (param $n i32) (result i32) (i32.const 5) (return)))`)
	require.Error(t, err)
}

func TestSanitise_RequiresElseOnIf(t *testing.T) {
	src := `(module (func $f (export "f") (param $a i32) (param $b i32) (result i32)
		(if (i32.eq (local.get $a) (local.get $b)) (then (local.get $a)))))`
	_, err := Sanitise(src)
	require.Error(t, err)
}

func TestSanitise_CanonicalisesEmptyElse(t *testing.T) {
	src := `(module (func $f (export "f") (param $a i32) (result i32)
		(if (local.get $a) (then (return (local.get $a))) (else))))`
	out, err := Sanitise(src)
	require.NoError(t, err)
	assert.Contains(t, out, "(else (nop))")
}

func TestSanitise_AcceptsCanonicalForm(t *testing.T) {
	src := `(module (func $add (export "add") (param $a i32) (param $b i32) (result i32)
		(i32.add (local.get $a) (local.get $b))))`
	out, err := Sanitise(src)
	require.NoError(t, err)
	assert.Contains(t, out, "(module")
}

func TestSanitise_StripsMarkdownFence(t *testing.T) {
	src := "```wat\n(module (func $f (export \"f\") (result i32) (return)))\n```"
	out, err := Sanitise(src)
	require.NoError(t, err)
	assert.NotContains(t, out, "```")
}
