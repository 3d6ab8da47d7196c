package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	bolt "go.etcd.io/bbolt"

	"github.com/Aman-CERP/indexedsearch/internal/errors"
)

const (
	// TagAnalyzerName splits tags on whitespace and lowercases them.
	TagAnalyzerName = "tag_keyword"

	internalSchemaKey = "schema_version"
)

// BleveIndex implements SearchIndex on Bleve v2.
type BleveIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	gate   *writerGate
	gen    atomic.Uint64
	closed bool
	logger *slog.Logger
}

var _ SearchIndex = (*BleveIndex)(nil)

// BlevePath returns where the Bleve engine keeps its index inside dir.
func BlevePath(dir string) string {
	return filepath.Join(dir, IndexName+".bleve")
}

// isCorruptionError checks if an error from Bleve indicates a damaged index.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if err == bleve.ErrorIndexMetaCorrupt || err == bleve.ErrorIndexMetaMissing {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// openBleve opens the index in dir, creating it when absent. An empty dir
// yields an in-memory index.
func openBleve(dir string, opts Options) (*BleveIndex, bool, error) {
	logger := opts.logger()

	im, err := newBleveMapping()
	if err != nil {
		return nil, false, errors.New(errors.ErrCodeIndexCreate, "failed to build index mapping", err)
	}

	if dir == "" {
		idx, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, false, errors.New(errors.ErrCodeIndexCreate, "failed to create in-memory index", err)
		}
		b := newBleveIndex(idx, "", "", opts)
		if err := idx.SetInternal([]byte(internalSchemaKey), []byte(strconv.Itoa(SchemaVersion))); err != nil {
			_ = idx.Close()
			return nil, false, errors.New(errors.ErrCodeIndexCreate, "failed to record schema version", err)
		}
		return b, true, nil
	}

	path := BlevePath(dir)
	openTimeout := opts.WriterTimeout
	if openTimeout <= 0 {
		openTimeout = DefaultWriterTimeout
	}
	// Another handle holding the index keeps the bolt file locked; bound
	// the wait instead of blocking forever.
	idx, err := bleve.OpenUsing(path, map[string]interface{}{
		"bolt_timeout": openTimeout.String(),
	})
	created := false
	switch {
	case stderrors.Is(err, bolt.ErrTimeout):
		return nil, false, errors.Unavailable("index is held open by another process",
			errors.New(errors.ErrCodeWriterBusy,
				fmt.Sprintf("index lock not acquired within %s", openTimeout), err)).
			WithDetail("path", path).
			WithSuggestion("stop the process serving this index, or use the sqlite backend to share it between processes")
	case err == bleve.ErrorIndexPathDoesNotExist:
		logger.Info("index_not_found", slog.String("path", path))
		idx, err = createBleve(path, im)
		created = true
	case err != nil && opts.RecoverCorrupt && isCorruptionError(err):
		logger.Warn("index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, false, errors.Unavailable("index corrupted and cannot be removed", rmErr).WithDetail("path", path)
		}
		logger.Info("index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, rebuilding"))
		idx, err = createBleve(path, im)
		created = true
	case err != nil:
		return nil, false, errors.Unavailable("failed to open index", err).WithDetail("path", path)
	}
	if err != nil {
		return nil, false, err
	}

	if !created {
		if err := checkBleveSchema(idx); err != nil {
			_ = idx.Close()
			return nil, false, errors.Unavailable("index schema is not usable", err).WithDetail("path", path)
		}
	}

	return newBleveIndex(idx, dir, path, opts), created, nil
}

func createBleve(path string, im mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.New(path, im)
	if err != nil {
		return nil, errors.New(errors.ErrCodeIndexCreate, "failed to create index", err).WithDetail("path", path)
	}
	if err := idx.SetInternal([]byte(internalSchemaKey), []byte(strconv.Itoa(SchemaVersion))); err != nil {
		_ = idx.Close()
		return nil, errors.New(errors.ErrCodeIndexCreate, "failed to record schema version", err)
	}
	return idx, nil
}

func checkBleveSchema(idx bleve.Index) error {
	raw, err := idx.GetInternal([]byte(internalSchemaKey))
	if err != nil {
		return err
	}
	if string(raw) != strconv.Itoa(SchemaVersion) {
		return errors.New(errors.ErrCodeSchemaMismatch,
			fmt.Sprintf("index schema version %q, expected %d", raw, SchemaVersion), nil)
	}
	return nil
}

func newBleveIndex(idx bleve.Index, dir, path string, opts Options) *BleveIndex {
	return &BleveIndex{
		index:  idx,
		path:   path,
		gate:   newWriterGate(dir, opts.WriterTimeout),
		logger: opts.logger(),
	}
}

func textField(analyzer string) *mapping.FieldMapping {
	fm := bleve.NewTextFieldMapping()
	fm.Analyzer = analyzer
	fm.Store = false
	return fm
}

// newBleveMapping builds the media_entries schema. Only media_id and time
// are stored; text fields are indexed for search only.
func newBleveMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomAnalyzer(TagAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add tag analyzer: %w", err)
	}

	idField := bleve.NewNumericFieldMapping()
	idField.Store = true

	timeField := bleve.NewKeywordFieldMapping()
	timeField.Store = true

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt(FieldMediaID, idField)
	doc.AddFieldMappingsAt(FieldTime, timeField)
	doc.AddFieldMappingsAt(FieldTitle, textField(standard.Name))
	doc.AddFieldMappingsAt(FieldDescription, textField(standard.Name))
	doc.AddFieldMappingsAt(FieldComment, textField(standard.Name))
	doc.AddFieldMappingsAt(FieldUser, textField(standard.Name))
	doc.AddFieldMappingsAt(FieldTag, textField(TagAnalyzerName))

	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im, nil
}

func docID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func bleveFields(doc *Document) map[string]interface{} {
	fields := map[string]interface{}{
		FieldMediaID:     float64(doc.ID),
		FieldTitle:       doc.Title,
		FieldDescription: doc.Description,
		FieldTag:         doc.Tag,
		FieldComment:     doc.Comment,
		FieldTime:        formatTime(doc.Time),
	}
	if doc.User != "" {
		fields[FieldUser] = doc.User
	}
	return fields
}

// formatTime is the stored representation of a document time.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func (b *BleveIndex) NewWriter(ctx context.Context) (Writer, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, errors.ErrIndexClosed
	}
	if err := b.gate.acquire(ctx); err != nil {
		return nil, err
	}
	return newStagedWriter(b.gate, b.apply, func() { b.gen.Add(1) }), nil
}

// apply executes staged operations as one Bleve batch. Within a batch the
// last operation on an id wins, matching sequential application.
func (b *BleveIndex) apply(ctx context.Context, ops []op) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return errors.ErrIndexClosed
	}

	batch := b.index.NewBatch()
	for _, o := range ops {
		if o.doc == nil {
			batch.Delete(docID(o.id))
			continue
		}
		if err := batch.Index(docID(o.id), bleveFields(o.doc)); err != nil {
			return fmt.Errorf("failed to stage document %d: %w", o.id, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		if isCorruptionError(err) {
			return errors.Unavailable("batch failed", err)
		}
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func (b *BleveIndex) Upsert(ctx context.Context, doc *Document, w Writer) error {
	return withWriter(ctx, b, w, func(w Writer) error { return w.Upsert(doc) })
}

func (b *BleveIndex) Remove(ctx context.Context, id uint64, w Writer) error {
	return withWriter(ctx, b, w, func(w Writer) error { return w.Remove(id) })
}

// StoredFields returns every document's id and time. Bleve executes one
// search against one snapshot, so the result is never a mix of commits.
func (b *BleveIndex) StoredFields(ctx context.Context) ([]StoredFields, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.ErrIndexClosed
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, errors.Unavailable("failed to count documents", err)
	}
	if count == 0 {
		return []StoredFields{}, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	req.Fields = []string{FieldTime}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.New(errors.ErrCodeIndexRead, "failed to enumerate stored fields", err)
	}

	out := make([]StoredFields, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			b.logger.Warn("index_bad_doc_id", slog.String("doc_id", hit.ID))
			continue
		}
		sf := StoredFields{ID: id}
		if raw, ok := hit.Fields[FieldTime].(string); ok {
			if t, err := parseTime(raw); err == nil {
				sf.Time = t
			}
		}
		out = append(out, sf)
	}
	return out, nil
}

func (b *BleveIndex) Search(ctx context.Context, queryStr string, fields []string, limit int) ([]uint64, error) {
	fields, err := resolveFields(fields)
	if err != nil {
		return nil, err
	}
	q, err := ParseQuery(queryStr)
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return []uint64{}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.ErrIndexClosed
	}

	req := bleve.NewSearchRequestOptions(bleveQuery(q.Root, fields), searchLimit(limit), 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "search failed", err)
	}

	ids := make([]uint64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// bleveQuery renders a parsed query. Unqualified terms become a disjunction
// over fields; conjunctions with exclusions become boolean queries.
func bleveQuery(n Node, fields []string) query.Query {
	switch n := n.(type) {
	case *Term:
		fs := searchFields(n, fields)
		qs := make([]query.Query, 0, len(fs))
		for _, f := range fs {
			qs = append(qs, bleveTerm(n, f))
		}
		if len(qs) == 1 {
			return qs[0]
		}
		return bleve.NewDisjunctionQuery(qs...)
	case *And:
		must := make([]query.Query, len(n.Must))
		for i, c := range n.Must {
			must[i] = bleveQuery(c, fields)
		}
		if len(n.MustNot) == 0 {
			return bleve.NewConjunctionQuery(must...)
		}
		not := make([]query.Query, len(n.MustNot))
		for i, c := range n.MustNot {
			not[i] = bleveQuery(c, fields)
		}
		bq := bleve.NewBooleanQuery()
		bq.AddMust(must...)
		bq.AddMustNot(not...)
		return bq
	case *Or:
		alts := make([]query.Query, len(n.Any))
		for i, c := range n.Any {
			alts[i] = bleveQuery(c, fields)
		}
		return bleve.NewDisjunctionQuery(alts...)
	}
	return bleve.NewMatchNoneQuery()
}

func bleveTerm(t *Term, field string) query.Query {
	switch {
	case t.Phrase:
		q := bleve.NewMatchPhraseQuery(t.Text)
		q.SetField(field)
		return q
	case t.Prefix:
		q := bleve.NewPrefixQuery(strings.ToLower(t.Text))
		q.SetField(field)
		return q
	default:
		q := bleve.NewMatchQuery(t.Text)
		q.SetField(field)
		q.SetOperator(query.MatchQueryOperatorAnd)
		return q
	}
}

func (b *BleveIndex) Count(ctx context.Context) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, errors.ErrIndexClosed
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, errors.Unavailable("failed to count documents", err)
	}
	return n, nil
}

func (b *BleveIndex) Generation() uint64 { return b.gen.Load() }

func (b *BleveIndex) Backend() Backend { return BackendBleve }

func (b *BleveIndex) Path() string { return b.path }

// Close closes the index. Closing twice is a no-op.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.index.Close(); err != nil && !stderrors.Is(err, bleve.ErrorIndexClosed) {
		return err
	}
	return nil
}
