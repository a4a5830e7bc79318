package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/ingestion"
	"github.com/poiesic/mailrag/message"
	"github.com/poiesic/mailrag/retrieval"
)

// ingestExtensions are the file types picked up when walking a directory.
var ingestExtensions = []string{".eml", ".txt", ".html", ".htm"}

func (a *cliApp) ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file or directory is required")
	}
	owner := c.String("owner")

	files, err := collectFiles(c.Args().Slice())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no %s files found", strings.Join(ingestExtensions, ", "))
	}

	engine, err := a.openEngine(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	docs := make([]core.Document, 0, len(files))
	unreadable := 0
	for _, path := range files {
		m, err := message.ReadFile(path)
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "skipping %s: %v\n", path, err)
			unreadable++
			continue
		}
		docs = append(docs, engine.MessageDocument(owner, m))
	}

	fmt.Fprintf(c.App.ErrWriter, "Owner: %s\n", owner)
	fmt.Fprintf(c.App.ErrWriter, "Backend: %s\n", a.cfg.Store.Backend)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", a.cfg.Embedding.Model)
	fmt.Fprintln(c.App.ErrWriter)

	tracker := ingestion.NewProgressTracker(c.App.ErrWriter, "documents", c.Int("report-interval"))
	tracker.Start()
	batch, err := engine.IngestBatch(c.Context, docs, tracker)
	tracker.Finish()
	if err != nil {
		return fmt.Errorf("ingestion interrupted: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Ingested %d, skipped %d, failed %d in %s\n",
		batch.Ingested, batch.Skipped, len(batch.Failed)+unreadable, batch.Elapsed.Round(time.Millisecond))
	for _, f := range batch.Failed {
		fmt.Fprintf(c.App.ErrWriter, "failed %s: %v\n", f.DocumentID, f.Err)
	}
	if failed := len(batch.Failed) + unreadable; failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// collectFiles expands directories into the ingestible files below them.
// Files named explicitly are kept whatever their extension.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && slices.Contains(ingestExtensions, strings.ToLower(filepath.Ext(path))) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

type retrievedJSON struct {
	DocumentID string  `json:"document_id"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
}

func (a *cliApp) retrieveCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("a query is required")
	}

	var opts []retrieval.QueryOption
	if c.IsSet("threshold") {
		opts = append(opts, retrieval.Threshold(float32(c.Float64("threshold"))))
	}
	if c.IsSet("max-documents") {
		opts = append(opts, retrieval.MaxDocuments(c.Int("max-documents")))
	}

	engine, err := a.openEngine(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	docs, err := engine.Retrieve(c.Context, c.String("owner"), query, opts...)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if c.Bool("json") {
		out := make([]retrievedJSON, len(docs))
		for i, d := range docs {
			out[i] = retrievedJSON{DocumentID: d.DocumentID, Score: d.Score, Content: d.Content}
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(docs) == 0 {
		fmt.Fprintln(c.App.Writer, "No matching messages.")
		return nil
	}
	for i, d := range docs {
		fmt.Fprintf(c.App.Writer, "[%d] %s (score %.3f)\n%s\n\n", i+1, d.DocumentID, d.Score, d.Content)
	}
	return nil
}

func (a *cliApp) purgeCommand(c *cli.Context) error {
	engine, err := a.openEngine(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	report, err := engine.Purge(c.Context, c.String("owner"))
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Removed %d documents for %s\n", len(report.Removed), report.OwnerID)
	return nil
}

func (a *cliApp) statsCommand(c *cli.Context) error {
	engine, err := a.openEngine(c.Context)
	if err != nil {
		return err
	}
	defer engine.Close()

	inv, err := engine.Stats(c.Context, c.String("owner"))
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Owner %s: %d documents (limit %d), %d chunks\n",
		inv.OwnerID, len(inv.Documents), a.cfg.Ingestion.MaxDocuments, inv.Chunks)
	if len(inv.Documents) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tCHUNKS\tOLDEST")
	for _, d := range inv.Documents {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", d.DocumentID, d.Chunks, d.Oldest.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
