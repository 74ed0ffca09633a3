package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/hybridrag/internal/chunker"
)

// sourceDocument is a document read from disk, or the load error for it
type sourceDocument struct {
	chunker.Document
	hash string
	err  error
}

// record is one entry of a JSON corpus file, the shape scrapers emit
type record struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	DocType   string `json:"docType"`
	WordCount int    `json:"wordCount"`
	ScrapedAt string `json:"scrapedAt"`
}

// supported reports whether a file extension is ingested
func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt", ".json":
		return true
	}
	return false
}

// discoverFiles finds all ingestible files under root in lexical order.
// Hidden files and directories are skipped.
func discoverFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if !supported(root) {
			return nil, fmt.Errorf("unsupported file type: %s", root)
		}
		return []string{root}, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && supported(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// discoverDocuments loads every document under root. A file that cannot
// be read or parsed yields one document carrying the error.
func discoverDocuments(root string) ([]*sourceDocument, error) {
	files, err := discoverFiles(root)
	if err != nil {
		return nil, err
	}

	base := root
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		base = filepath.Dir(root)
	}

	var docs []*sourceDocument
	for _, path := range files {
		rel, err := filepath.Rel(base, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		content, err := os.ReadFile(path)
		if err != nil {
			docs = append(docs, &sourceDocument{Document: chunker.Document{Source: rel}, err: err})
			continue
		}

		if strings.EqualFold(filepath.Ext(path), ".json") {
			docs = append(docs, loadRecords(rel, content)...)
			continue
		}
		docs = append(docs, loadText(rel, string(content)))
	}
	return docs, nil
}

// loadText builds a document from a markdown or text file. The title is
// the first markdown heading, else the file name; the category is the top
// level directory.
func loadText(rel, content string) *sourceDocument {
	doc := &sourceDocument{
		Document: chunker.Document{
			Title:    titleOf(rel, content),
			Source:   rel,
			Category: categoryOf(rel),
			Content:  content,
		},
		hash: contentHash(content),
	}
	return doc
}

// loadRecords parses a JSON array of records. Records without a URL are
// addressed as <file>#<id or position>.
func loadRecords(rel string, content []byte) []*sourceDocument {
	var records []record
	if err := json.Unmarshal(content, &records); err != nil {
		return []*sourceDocument{{
			Document: chunker.Document{Source: rel},
			err:      fmt.Errorf("invalid JSON corpus: %w", err),
		}}
	}

	docs := make([]*sourceDocument, 0, len(records))
	for i, rec := range records {
		source := rec.URL
		if source == "" {
			anchor := rec.ID
			if anchor == "" {
				anchor = strconv.Itoa(i)
			}
			source = rel + "#" + anchor
		}

		extra := map[string]string{}
		if rec.DocType != "" {
			extra["docType"] = rec.DocType
		}
		if rec.WordCount > 0 {
			extra["wordCount"] = strconv.Itoa(rec.WordCount)
		}
		if rec.ScrapedAt != "" {
			extra["scrapedAt"] = rec.ScrapedAt
		}
		if len(extra) == 0 {
			extra = nil
		}

		doc := &sourceDocument{
			Document: chunker.Document{
				ID:       rec.ID,
				Title:    rec.Title,
				Source:   source,
				Category: rec.Category,
				Content:  rec.Content,
				Extra:    extra,
			},
			// Metadata is part of the hash so title or category edits re-index
			hash: contentHash(rec.Title + "\x00" + rec.Category + "\x00" + rec.Content),
		}
		if strings.TrimSpace(rec.Content) == "" {
			doc.err = fmt.Errorf("record %d has no content", i)
		}
		docs = append(docs, doc)
	}
	return docs
}

func titleOf(rel, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	name := filepath.Base(rel)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func categoryOf(rel string) string {
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return ""
}

// contentHash computes the hex SHA-256 of content
func contentHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

func newDocumentID() string {
	return uuid.NewString()
}
