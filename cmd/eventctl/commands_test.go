package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "retry", "requeue", "replay", "rebuild", "archive"}, names)
}

func TestReplayFlags_Request(t *testing.T) {
	req, err := replayFlags{
		from:   "2026-01-01T00:00:00Z",
		to:     "2026-01-02T00:00:00Z",
		target: " https://hooks.example.com/replay ",
		dryRun: true,
	}.request()
	require.NoError(t, err)

	require.NotNil(t, req.Selector.From)
	require.NotNil(t, req.Selector.To)
	assert.True(t, req.Selector.From.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 24*time.Hour, req.Selector.To.Sub(*req.Selector.From))
	assert.Equal(t, "https://hooks.example.com/replay", req.Target)
	assert.True(t, req.DryRun)
}

func TestReplayFlags_StreamOnly(t *testing.T) {
	req, err := replayFlags{streamID: "user:7"}.request()
	require.NoError(t, err)

	assert.Equal(t, "user:7", req.Selector.StreamID)
	assert.Nil(t, req.Selector.From)
	assert.Nil(t, req.Selector.To)
}

func TestReplayFlags_InvalidTime(t *testing.T) {
	_, err := replayFlags{from: "yesterday", to: "2026-01-02T00:00:00Z"}.request()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--from")
}

func TestReplayCmd_FlagGroups(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"replay", "--stream", "user:7", "--event-id", "a"})
	err := root.Execute()
	require.Error(t, err)

	root = newRootCmd()
	root.SetArgs([]string{"replay", "--from", "2026-01-01T00:00:00Z"})
	err = root.Execute()
	require.Error(t, err)
}

func TestRebuildCmd_RequiresID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"rebuild"})
	require.Error(t, root.Execute())
}
