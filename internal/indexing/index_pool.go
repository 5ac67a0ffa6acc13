package indexing

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	lcierrors "github.com/standardbeagle/lci/internal/errors"
)

// MaxHits bounds every internal "find every matching document" search the
// pool issues for update/delete/rename. It has to be large enough that a
// folder rename rewrites every document under the prefix in one call.
const MaxHits = 10_000_000

// Term is an exact-match predicate on one field's stored value, used for
// update/delete and for the builder's rename/lookup operations. It should
// name an untokenized ("$$_"-suffixed) field when exactness matters, or a
// tokenized field when matching a single emitted token.
type Term struct {
	Field string
	Value string
}

// BuildDoc is one document staged by Build: an index-assigned ID paired
// with the field set to store (a *codeDocument or *hintDocument).
type BuildDoc struct {
	ID     string
	Fields interface{}
}

// Hit is one search result: the document ID plus every stored field
// requested (Search always asks for all of them).
type Hit struct {
	ID     string
	Fields map[string]interface{}
}

// IndexPool is a concurrency-safe handle to one on-disk inverted index
// directory. It hides bleve's own reader/writer split behind a staged-write
// contract: build/update/delete stage into a pending batch, and only commit
// (or a build call with commit=true) makes them durable and visible to
// subsequent searches.
//
// bleve's scorch backend is itself near-real-time and safe for concurrent
// readers and a single writer, which already gives IndexPool the "no data
// race, no torn reads" half of the contract for free. The pending-batch
// layer on top exists to honor the other half: deletes and updates are
// "pending until commit" rather than immediately visible, matching a
// non-NRT engine's writer/reader split. mu is the reader-freshness lock:
// Search holds it shared, Commit holds it exclusive around the point where
// a fresh reader must see every change just flushed. writeMu serializes
// concurrent stagers so the pending batch is never built from two
// goroutines at once.
type IndexPool struct {
	dir string

	index bleve.Index

	writeMu sync.Mutex
	pending *bleve.Batch
	// staged mirrors the pending batch's index ops so term-based deletes
	// and updates can see documents that are not yet committed: a create
	// immediately followed by a delete of the same path must net out to
	// nothing even when no commit separates them.
	staged map[string]interface{}

	mu     sync.RWMutex
	closed bool
}

// NewIndexPool opens the index directory at dir, creating it (and the
// directory itself) if it does not yet exist.
func NewIndexPool(dir string, im mapping.IndexMapping) (*IndexPool, error) {
	idx, err := bleve.Open(dir)
	switch {
	case err == nil:
		// existing index reopened
	case err == bleve.ErrorIndexPathDoesNotExist, err == bleve.ErrorIndexMetaMissing:
		// Missing directory and pre-created empty directory both mean
		// "no index here yet". bleve creates the directory itself.
		idx, err = bleve.New(dir, im)
		if err != nil {
			return nil, lcierrors.NewIndexingError("create-index", err).WithFile(dir)
		}
	default:
		return nil, lcierrors.NewIndexingError("open-index", err).WithFile(dir)
	}

	return &IndexPool{
		dir:     dir,
		index:   idx,
		pending: idx.NewBatch(),
		staged:  make(map[string]interface{}),
	}, nil
}

// Build appends docs to the pending batch. commit, triggerMerge, and
// applyDeletes each force an immediate Commit once staging finishes: bleve's
// scorch store does not expose separate "merge now" or "apply pending
// deletes now" controls, so all three collapse onto the one durability gate
// the engine actually offers.
func (p *IndexPool) Build(docs []BuildDoc, commit, triggerMerge, applyDeletes bool) error {
	p.writeMu.Lock()
	for _, d := range docs {
		if err := p.pending.Index(d.ID, d.Fields); err != nil {
			p.writeMu.Unlock()
			return lcierrors.NewIndexingError("build", err).WithFile(p.dir)
		}
		p.staged[d.ID] = d.Fields
	}
	p.writeMu.Unlock()

	if commit || triggerMerge || applyDeletes {
		return p.Commit()
	}
	return nil
}

// Update atomically stages delete(term) then add(doc) in the same pending
// batch. When term matches no document this degrades to a plain insert.
func (p *IndexPool) Update(term Term, id string, fields interface{}) error {
	matches, err := p.idsMatching(termQuery(term))
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	for _, mid := range matches {
		p.pending.Delete(mid)
		delete(p.staged, mid)
	}
	for sid, sf := range p.staged {
		if stagedMatches(term, sf) {
			p.pending.Delete(sid)
			delete(p.staged, sid)
		}
	}
	if err := p.pending.Index(id, fields); err != nil {
		return lcierrors.NewIndexingError("update", err).WithFile(p.dir)
	}
	p.staged[id] = fields
	return nil
}

// DeleteTerm stages removal of every document whose Field equals Value,
// committed or still pending.
func (p *IndexPool) DeleteTerm(term Term) error {
	ids, err := p.idsMatching(termQuery(term))
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	for _, id := range ids {
		p.pending.Delete(id)
		delete(p.staged, id)
	}
	for sid, sf := range p.staged {
		if stagedMatches(term, sf) {
			p.pending.Delete(sid)
			delete(p.staged, sid)
		}
	}
	return nil
}

// DeletePrefix stages removal of every document whose Field starts with
// prefix.
func (p *IndexPool) DeletePrefix(field, prefix string) error {
	q := bleve.NewPrefixQuery(prefix)
	q.SetField(field)
	return p.Delete(q)
}

// Delete stages removal of every committed document matching q; pending
// until commit. Arbitrary queries cannot be evaluated against documents
// still staged in the batch; callers that need delete-before-commit
// semantics use DeleteTerm.
func (p *IndexPool) Delete(q query.Query) error {
	ids, err := p.idsMatching(q)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	for _, id := range ids {
		p.pending.Delete(id)
		delete(p.staged, id)
	}
	return nil
}

// DeleteAll stages removal of every document in the index, staged ones
// included.
func (p *IndexPool) DeleteAll() error {
	ids, err := p.idsMatching(bleve.NewMatchAllQuery())
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	for _, id := range ids {
		p.pending.Delete(id)
	}
	for sid := range p.staged {
		p.pending.Delete(sid)
		delete(p.staged, sid)
	}
	return nil
}

// SearchTerm returns every document whose field equals value.
func (p *IndexPool) SearchTerm(term Term, maxHits int) ([]Hit, error) {
	return p.Search(termQuery(term), maxHits)
}

// SearchPrefix returns every document whose field starts with prefix.
func (p *IndexPool) SearchPrefix(field, prefix string, maxHits int) ([]Hit, error) {
	q := bleve.NewPrefixQuery(prefix)
	q.SetField(field)
	return p.Search(q, maxHits)
}

// SearchAll returns every document in the index (MatchAllDocs).
func (p *IndexPool) SearchAll(maxHits int) ([]Hit, error) {
	return p.Search(bleve.NewMatchAllQuery(), maxHits)
}

// Search returns up to maxHits documents visible to a current-enough
// reader. Concurrent searches never block each other; they only ever
// contend with a Commit that is mid-flight.
func (p *IndexPool) Search(q query.Query, maxHits int) ([]Hit, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(q, maxHits, 0, false)
	req.Fields = []string{"*"}
	res, err := p.index.Search(req)
	if err != nil {
		return nil, lcierrors.NewSearchError(fmt.Sprintf("%v", q), err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Fields: h.Fields})
	}
	return hits, nil
}

// Count returns the number of documents visible to a current-enough reader.
func (p *IndexPool) Count() (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, err := p.index.DocCount()
	if err != nil {
		return 0, lcierrors.NewIndexingError("count", err).WithFile(p.dir)
	}
	return n, nil
}

// Commit flushes the pending batch to disk, then takes the reader-freshness
// lock exclusively once so the next Search observes everything just
// committed. The pool keeps no reader of its own to invalidate.
func (p *IndexPool) Commit() error {
	// writeMu is held across the batch apply, not just the swap: a commit
	// that drained another caller's staged documents must not return until
	// those documents are durable, or that caller's own follow-up commit
	// would see an empty pending batch and report success early.
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	batch := p.pending
	if batch.Size() == 0 {
		return nil
	}
	p.pending = p.index.NewBatch()
	p.staged = make(map[string]interface{})

	if err := p.index.Batch(batch); err != nil {
		return lcierrors.NewIndexingError("commit", err).WithFile(p.dir).WithRecoverable(false)
	}

	// The batch write above is already durable and visible through bleve's
	// own near-real-time reader; this lock round-trip is the freshness
	// barrier: no Search in flight can straddle a commit and observe a
	// half-applied state.
	p.mu.Lock()
	p.mu.Unlock()
	return nil
}

// Close closes the pool's reader and writer (bleve exposes both behind a
// single Close). Idempotent.
func (p *IndexPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.index.Close()
}

func (p *IndexPool) idsMatching(q query.Query) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	req := bleve.NewSearchRequestOptions(q, MaxHits, 0, false)
	res, err := p.index.Search(req)
	if err != nil {
		return nil, lcierrors.NewSearchError(fmt.Sprintf("%v", q), err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

func termQuery(t Term) query.Query {
	q := bleve.NewTermQuery(t.Value)
	q.SetField(t.Field)
	return q
}

// stagedMatches evaluates an exact-match term against a document that is
// still in the pending batch. Only the untokenized key fields the builder
// actually deletes and updates by are supported; everything else waits for
// commit like any other query.
func stagedMatches(t Term, fields interface{}) bool {
	switch d := fields.(type) {
	case *codeDocument:
		switch t.Field {
		case FieldCodePK:
			return d.CodePK == t.Value
		case FieldFilePathUntok:
			return d.FilePathUntok == t.Value
		case FieldFileNameUntok:
			return d.FileNameUntok == t.Value
		}
	case *hintDocument:
		switch t.Field {
		case FieldWordUntok:
			return d.WordUntok == t.Value
		case FieldWordLowerUntok:
			return d.WordLowerUntok == t.Value
		}
	}
	return false
}
