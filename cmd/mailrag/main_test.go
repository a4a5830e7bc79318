package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/mailrag"
	aimock "github.com/poiesic/mailrag/ai/mock"
	"github.com/poiesic/mailrag/core"
)

const sampleEmail = "Message-ID: <offsite-1@example.com>\r\n" +
	"From: ana@example.com\r\n" +
	"Subject: Offsite\r\n" +
	"Date: Mon, 02 Jun 2025 09:30:00 +0000\r\n" +
	"\r\n" +
	"The quarterly offsite is planned for Lisbon in September.\r\n"

// testApp returns an app whose engine embeds every text to the same vector.
func testApp(t *testing.T) (*cli.App, *bytes.Buffer) {
	t.Helper()
	t.Setenv("MAILRAG_INGESTION_UPSERTS_PER_SECOND", "0")
	t.Setenv("MAILRAG_STORE_BATCH_DELAY", "0s")
	t.Setenv("MAILRAG_LOG_LEVEL", "error")

	embedder := aimock.NewMockEmbedderWithDimensions(core.DefaultDimensions)
	vec := aimock.DeterministicVector("fixed", core.DefaultDimensions)
	embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return vec, nil
	}

	app := newApp(mailrag.WithEmbedder(embedder))
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	return app, &out
}

func writeMailbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "offsite.eml"), []byte(sampleEmail), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("Remember to book flights to Lisbon early."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.bin"), []byte{0, 1, 2}, 0o600))
	return dir
}

func TestCommands_EndToEnd(t *testing.T) {
	db := t.TempDir()
	mailbox := writeMailbox(t)

	app, out := testApp(t)
	require.NoError(t, app.Run([]string{"mailrag", "--db", db, "ingest", "--owner", "u1", mailbox}))
	assert.Contains(t, out.String(), "Ingested 2, skipped 0, failed 0")

	app, out = testApp(t)
	require.NoError(t, app.Run([]string{"mailrag", "--db", db, "stats", "--owner", "u1"}))
	assert.Contains(t, out.String(), "Owner u1: 2 documents (limit 500)")
	assert.Contains(t, out.String(), "offsite-1@example.com")
	assert.Contains(t, out.String(), "note")

	app, out = testApp(t)
	require.NoError(t, app.Run([]string{"mailrag", "--db", db, "retrieve", "--owner", "u1", "--json", "where", "is", "the", "offsite"}))
	var results []retrievedJSON
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"offsite-1@example.com", "note"}, []string{results[0].DocumentID, results[1].DocumentID})

	app, out = testApp(t)
	require.NoError(t, app.Run([]string{"mailrag", "--db", db, "retrieve", "--owner", "u1", "-n", "1", "offsite"}))
	assert.Contains(t, out.String(), "[1] ")
	assert.NotContains(t, out.String(), "[2] ")

	app, out = testApp(t)
	require.NoError(t, app.Run([]string{"mailrag", "--db", db, "retrieve", "--owner", "u2", "offsite"}))
	assert.Contains(t, out.String(), "No matching messages.")

	app, out = testApp(t)
	require.NoError(t, app.Run([]string{"mailrag", "--db", db, "purge", "--owner", "u1"}))
	assert.Contains(t, out.String(), "Removed 2 documents for u1")

	app, out = testApp(t)
	require.NoError(t, app.Run([]string{"mailrag", "--db", db, "stats", "--owner", "u1"}))
	assert.Contains(t, out.String(), "Owner u1: 0 documents")
}

func TestIngestCommand_Errors(t *testing.T) {
	t.Run("owner is required", func(t *testing.T) {
		app, _ := testApp(t)
		err := app.Run([]string{"mailrag", "ingest", t.TempDir()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "owner")
	})

	t.Run("paths are required", func(t *testing.T) {
		app, _ := testApp(t)
		err := app.Run([]string{"mailrag", "ingest", "--owner", "u1"})
		assert.Error(t, err)
	})

	t.Run("empty directory", func(t *testing.T) {
		app, _ := testApp(t)
		err := app.Run([]string{"mailrag", "ingest", "--owner", "u1", t.TempDir()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no .eml")
	})

	t.Run("unreadable file fails the run", func(t *testing.T) {
		dir := t.TempDir()
		bad := filepath.Join(dir, "image.png")
		require.NoError(t, os.WriteFile(bad, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o600))
		app, _ := testApp(t)
		err := app.Run([]string{"mailrag", "ingest", "--owner", "u1", bad})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 1 files failed")
	})
}

func TestGlobalFlags(t *testing.T) {
	t.Run("invalid backend", func(t *testing.T) {
		app, _ := testApp(t)
		err := app.Run([]string{"mailrag", "--backend", "pinecone", "stats", "--owner", "u1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid backend")
	})

	t.Run("invalid log level", func(t *testing.T) {
		app, _ := testApp(t)
		err := app.Run([]string{"mailrag", "--log-level", "loud", "stats", "--owner", "u1"})
		assert.Error(t, err)
	})

	t.Run("config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mailrag.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: chromem\ningestion:\n  max_documents: 7\n"), 0o600))
		app, out := testApp(t)
		require.NoError(t, app.Run([]string{"mailrag", "--config", path, "stats", "--owner", "u1"}))
		assert.Contains(t, out.String(), "(limit 7)")
	})

	t.Run("missing config file", func(t *testing.T) {
		app, _ := testApp(t)
		err := app.Run([]string{"mailrag", "--config", filepath.Join(t.TempDir(), "nope.yaml"), "stats", "--owner", "u1"})
		assert.Error(t, err)
	})
}

func TestCollectFiles(t *testing.T) {
	dir := writeMailbox(t)
	nested := filepath.Join(dir, "archive")
	require.NoError(t, os.Mkdir(nested, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "old.EML"), []byte(sampleEmail), 0o600))
	explicit := filepath.Join(dir, "ignored.bin")

	files, err := collectFiles([]string{dir, explicit})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(nested, "old.EML"),
		explicit,
		filepath.Join(dir, "note.txt"),
		filepath.Join(dir, "offsite.eml"),
	}, files)

	_, err = collectFiles([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
