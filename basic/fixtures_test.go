package basic

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anthonysdone/karambit/vm"
)

func TestFixtureLifeCompilesAndRuns(t *testing.T) {
	src, err := os.ReadFile("../testdata/life.tb")
	require.NoError(t, err)

	asm, err := Compile(string(src))
	require.NoError(t, err)

	prog, err := vm.Assemble(asm)
	require.NoError(t, err)

	machine := vm.New(prog)
	require.NoError(t, machine.RunToCompletion())
}
