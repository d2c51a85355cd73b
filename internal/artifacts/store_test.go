package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)
	return NewStore(t.TempDir(), logger)
}

func TestWriteRunArtifacts(t *testing.T) {
	store := newTestStore(t)

	configDoc := json.RawMessage(`{"max_open_trades": 3, "timeframe": "5m"}`)
	resultDoc := json.RawMessage(`{"total_profit_pct": 12.5}`)

	arts, err := store.WriteRunArtifacts("SMA200Strategy", 1, configDoc, resultDoc)
	require.NoError(t, err)
	require.NotNil(t, arts)

	assert.True(t, strings.Contains(arts.ConfigPath, "SMA200Strategy"))
	assert.True(t, strings.HasSuffix(arts.ConfigPath, "_config.json"))
	assert.True(t, strings.HasSuffix(arts.ResultPath, "_result.json"))

	written, err := os.ReadFile(arts.ConfigPath)
	require.NoError(t, err)
	assert.JSONEq(t, string(configDoc), string(written))
}

func TestWriteRunArtifactsEmptyDocuments(t *testing.T) {
	store := newTestStore(t)

	arts, err := store.WriteRunArtifacts("SMA200Strategy", 1, nil, nil)
	require.NoError(t, err)

	doc, err := store.ReadDocument(arts.ResultPath)
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(doc))
}

func TestWriteRunArtifactsInvalidJSON(t *testing.T) {
	store := newTestStore(t)

	_, err := store.WriteRunArtifacts("SMA200Strategy", 1, json.RawMessage("{not json"), json.RawMessage("{}"))
	require.Error(t, err)
}

func TestWriteRunArtifactsCollision(t *testing.T) {
	store := newTestStore(t)

	doc := json.RawMessage(`{"a": 1}`)
	first, err := store.WriteRunArtifacts("SMA200Strategy", 2, doc, doc)
	require.NoError(t, err)

	second, err := store.WriteRunArtifacts("SMA200Strategy", 2, doc, doc)
	require.NoError(t, err)

	assert.NotEqual(t, first.ConfigPath, second.ConfigPath)
	assert.NotEqual(t, first.ResultPath, second.ResultPath)
}

func TestReadDocumentMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ReadDocument(filepath.Join(store.BaseDir(), "nope.json"))
	require.Error(t, err)
}

func TestCopyTo(t *testing.T) {
	store := newTestStore(t)

	doc := json.RawMessage(`{"stake_amount": "100"}`)
	arts, err := store.WriteRunArtifacts("RSIStrategy", 1, doc, doc)
	require.NoError(t, err)

	exportDir := filepath.Join(t.TempDir(), "export")
	destPath, err := store.CopyTo(arts.ConfigPath, exportDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Base(arts.ConfigPath), filepath.Base(destPath))

	copied, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(copied))
}
