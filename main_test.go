package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func testContext(t *testing.T, args []string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("fisb", flag.ContinueOnError)
	set.String("serial", "", "")
	set.String("pcap", "", "")
	set.Int("baud", 2000000, "")
	set.Int("pcap-port", 30978, "")
	require.NoError(t, set.Parse(args))
	return cli.NewContext(nil, set, nil)
}

func TestOpenSourceDefaultsToStdin(t *testing.T) {
	src, err := openSource(testContext(t, nil))
	require.NoError(t, err)
	assert.NotNil(t, src)
}

func TestOpenSourceReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.978")
	require.NoError(t, os.WriteFile(path, []byte("+00ff;t=1620976537.000;\n"), 0644))

	src, err := openSource(testContext(t, []string{path}))
	require.NoError(t, err)
	defer src.Close()
	assert.NotNil(t, src)
}

func TestOpenSourceMissingFile(t *testing.T) {
	_, err := openSource(testContext(t, []string{"/does/not/exist.978"}))
	assert.Error(t, err)
}
