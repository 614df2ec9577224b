package cmds

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NH5pml30/virtual-machines/pkg/config"
)

var marker byte = 0x5a

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "config.yml")
	cmd := New()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseAddress(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want uintptr
	}{
		{"0", 0},
		{"0x10", 0x10},
		{"*0x20", 0x20},
		{"4096", 4096},
		{"0o17", 0o17},
	} {
		got, err := parseAddress(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, in := range []string{"", "zz", "0x", "-1", "0x1ffffffffffffffff"} {
		_, err := parseAddress(in)
		assert.Error(t, err, in)
	}
}

func TestReadCommand(t *testing.T) {
	addr := uintptr(unsafe.Pointer(&marker))
	out, err := run(t, "read", "0", fmt.Sprintf("%#x", addr))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "*0x0 == {}", lines[0])
	assert.Equal(t, fmt.Sprintf("*%#x == {5a}", addr), lines[1])
}

func TestReadCommandRandom(t *testing.T) {
	out, err := run(t, "read", "--random", "4")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestReadCommandErrors(t *testing.T) {
	_, err := run(t, "read")
	assert.Error(t, err)

	_, err = run(t, "read", "0x10", "not-an-address")
	assert.Error(t, err)
}

func TestSelftestCommand(t *testing.T) {
	out, err := run(t, "--color", "never", "selftest", "null", "literal", "global")
	require.NoError(t, err)
	for _, want := range []string{"null", "literal", "global", "{73}", "{5a}"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "PASS: 3 passed, 0 failed")
	assert.NotContains(t, out, ansiGreen)
}

func TestSelftestCommandColor(t *testing.T) {
	out, err := run(t, "--color", "always", "selftest", "null")
	require.NoError(t, err)
	assert.Contains(t, out, ansiGreen+"PASS"+ansiReset)

	_, err = run(t, "--color", "sometimes", "selftest", "null")
	assert.Error(t, err)
}

func TestSelftestCommandList(t *testing.T) {
	out, err := run(t, "selftest", "--list")
	require.NoError(t, err)
	assert.Contains(t, strings.Split(strings.TrimSpace(out), "\n"), "null")

	_, err = run(t, "selftest", "nope")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "memprobe\nVersion: "), out)
}

func TestLogOutputWithoutLog(t *testing.T) {
	_, err := run(t, "--log-output", "selftest", "version")
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, false, 3, 1)
	assert.Equal(t, "FAIL: 3 passed, 1 failed\n", buf.String())

	buf.Reset()
	printSummary(&buf, true, 2, 0)
	assert.Equal(t, ansiGreen+"PASS"+ansiReset+": 2 passed, 0 failed\n", buf.String())
}

func TestSummaryWriterNotATerminal(t *testing.T) {
	conf = config.Default()
	var buf bytes.Buffer
	w, colored := summaryWriter(&buf)
	assert.False(t, colored)
	assert.Equal(t, &buf, w)
}

func TestRandomFlagDocumentsSeed(t *testing.T) {
	read, _, err := New().Find([]string{"read"})
	require.NoError(t, err)
	flag := read.Flags().Lookup("random")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
	assert.Contains(t, flag.Usage, "0 by default")
	assert.Contains(t, read.Long, "The seed defaults to 0")
}
