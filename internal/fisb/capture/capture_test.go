package capture

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineSource(t *testing.T) {
	raw := make([]byte, 432)
	raw[0] = 0x42
	input := strings.Join([]string{
		"# comment line",
		"",
		fmt.Sprintf("+%s;rs=1;t=1620976537.000;", hex.EncodeToString(raw)),
	}, "\n")

	src := NewLineSource(strings.NewReader(input))
	got, rcvd, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.Equal(t, time.Date(2021, 5, 14, 7, 15, 37, 0, time.UTC), rcvd)

	_, _, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestLineSourceReportsBadLineAndContinues(t *testing.T) {
	raw := make([]byte, 432)
	input := "+zzzz;t=12;\n" +
		fmt.Sprintf("+%s;t=1620976537.000;", hex.EncodeToString(raw))

	src := NewLineSource(strings.NewReader(input))
	_, _, err := src.Next(context.Background())
	require.Error(t, err, "garbage line surfaces as an error")

	got, _, err := src.Next(context.Background())
	require.NoError(t, err, "stream continues past the bad line")
	assert.Equal(t, raw, got)
}

func TestLineSourceCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewLineSource(strings.NewReader("+00;t=12;\n"))
	_, _, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
