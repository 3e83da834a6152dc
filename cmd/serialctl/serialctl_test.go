package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/garden-serial/pkg/serial"
)

type order struct {
	ID    int64
	Items []string
	Note  string `serial:"note,from=Remark"`
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("serial:\n  strategy: indirect\n"), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "serialctl v"+Version)
}

func TestDecodeWithSnapshot(t *testing.T) {
	dir := t.TempDir()
	writer, err := serial.NewRepository()
	require.NoError(t, err)

	payload, err := writer.Marshal(order{ID: 7, Items: []string{"tea"}, Note: "hot"})
	require.NoError(t, err)
	payloadPath := filepath.Join(dir, "order.bin")
	require.NoError(t, os.WriteFile(payloadPath, payload, 0o600))

	out, err := run(t, "decode", payloadPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"@type"`)
	assert.Contains(t, out, `"tea"`)

	// 第二条消息不再携带描述符，需要快照
	var stream bytes.Buffer
	enc := writer.NewEncoder(&stream)
	require.NoError(t, enc.Encode(order{ID: 1}))
	first := stream.Len()
	require.NoError(t, enc.Encode(order{ID: 2, Note: "second"}))
	tail := filepath.Join(dir, "tail.bin")
	require.NoError(t, os.WriteFile(tail, stream.Bytes()[first:], 0o600))

	var snap bytes.Buffer
	require.NoError(t, writer.SaveSnapshot(&snap))
	snapPath := filepath.Join(dir, "types.snap")
	require.NoError(t, os.WriteFile(snapPath, snap.Bytes(), 0o600))

	_, err = run(t, "decode", tail)
	assert.Error(t, err)

	out, err = run(t, "decode", "--snapshot", snapPath, tail)
	require.NoError(t, err)
	assert.Contains(t, out, `"second"`)

	streamPath := filepath.Join(dir, "stream.bin")
	require.NoError(t, os.WriteFile(streamPath, stream.Bytes(), 0o600))
	out, err = run(t, "decode", "--stream", streamPath)
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte(`"@type"`)))

	out, err = run(t, "snapshot", "inspect", snapPath)
	require.NoError(t, err)
	assert.Contains(t, out, "order")
	assert.Contains(t, out, "snapshot v"+serial.SnapshotVersion.String())

	out, err = run(t, "snapshot", "inspect", "--json", snapPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"from": "Remark"`)
}

func TestEncodeJSON(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "order.json")
	require.NoError(t, os.WriteFile(doc, []byte(`{"id": 9, "items": ["tea", "cake"], "price": 2.5, "gift": null}`), 0o600))
	payload := filepath.Join(dir, "order.bin")

	_, err := run(t, "encode", "-o", payload, doc)
	require.NoError(t, err)

	data, err := os.ReadFile(payload)
	require.NoError(t, err)
	repo, err := serial.NewRepository()
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, repo.Unmarshal(data, &got))
	assert.Equal(t, map[string]any{
		"id":    int64(9),
		"items": []any{"tea", "cake"},
		"price": 2.5,
		"gift":  nil,
	}, got)

	out, err := run(t, "decode", payload)
	require.NoError(t, err)
	assert.Contains(t, out, `"cake"`)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"id": `), 0o600))
	_, err = run(t, "encode", bad)
	assert.Error(t, err)
}

func TestInspectRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o600))
	_, err := run(t, "snapshot", "inspect", path)
	assert.Error(t, err)
}
