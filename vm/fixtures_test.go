package vm

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixtureHelloPrintsHi(t *testing.T) {
	src, err := os.ReadFile("../testdata/hello.asm")
	require.NoError(t, err)

	prog, err := Assemble(string(src))
	require.NoError(t, err)

	var out bytes.Buffer
	v := New(prog, WithStdout(&out))
	require.NoError(t, v.RunToCompletion())

	assert.Equal(t, "Hi", out.String())
}

func TestFixtureCountWritesFiveBytes(t *testing.T) {
	src, err := os.ReadFile("../testdata/count.asm")
	require.NoError(t, err)

	prog, err := Assemble(string(src))
	require.NoError(t, err)

	var out bytes.Buffer
	v := New(prog, WithStdout(&out))
	require.NoError(t, v.RunToCompletion())

	assert.Equal(t, []byte{0, 1, 2, 3, 4}, out.Bytes())
}
