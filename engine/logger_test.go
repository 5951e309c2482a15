package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLogger(t *testing.T) {
	dir := t.TempDir()
	id := JobID{Run: "20260825-120000-abcd", Job: "build"}

	logger, err := NewRunLogger(dir, id)
	require.NoError(t, err)

	_, err = logger.Stdout(0).Write([]byte("hello\nworld\n"))
	require.NoError(t, err)
	_, err = logger.Stderr(1).Write([]byte("oops\n"))
	require.NoError(t, err)

	require.NoError(t, logger.Close())

	assert.Equal(t, LogFilePath(dir, id), logger.Path())

	file, err := os.Open(logger.Path())
	require.NoError(t, err)
	defer file.Close()

	var lines []LogLine
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line LogLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, []LogLine{
		{Step: 0, Stream: "stdout", Data: "hello"},
		{Step: 0, Stream: "stdout", Data: "world"},
		{Step: 1, Stream: "stderr", Data: "oops"},
	}, lines)
}

func TestJobIDNormalization(t *testing.T) {
	id := JobID{Run: "run/1", Job: "build & test"}
	assert.Equal(t, "run-1-build---test", id.String())
}
