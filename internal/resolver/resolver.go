// Package resolver reconciles one case title against the live wiki: it
// captures the deletion discussion and classifies the article's existence.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/afd-harvester/internal/afd"
	"github.com/JakeFAU/afd-harvester/internal/titlecodec"
	"github.com/JakeFAU/afd-harvester/internal/wiki"
)

// DocumentContentType is the content type of discussion documents.
const DocumentContentType = "application/json"

// ContentClient is the subset of the wiki client used here.
type ContentClient interface {
	FetchRendered(ctx context.Context, title string, opts ...wiki.CallOption) (string, error)
	Parse(ctx context.Context, title string, opts ...wiki.CallOption) (wiki.ParseResult, error)
	QueryMetadata(ctx context.Context, title string, opts ...wiki.CallOption) (wiki.QueryResult, error)
	EarliestRevision(ctx context.Context, title string, opts ...wiki.CallOption) (wiki.Revision, error)
}

// Resolver processes case titles. It is safe for concurrent use when the
// client and store are.
type Resolver struct {
	client ContentClient
	docs   afd.BlobStore
	logger *zap.Logger
}

// New builds a Resolver writing discussion documents to docs.
func New(client ContentClient, docs afd.BlobStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, docs: docs, logger: logger}
}

// Resolve captures the discussion of caseTitle, stores it and returns the
// article's meta row. Any error means the case produced no output.
func (r *Resolver) Resolve(ctx context.Context, caseTitle string) (afd.CaseMeta, error) {
	doc, err := r.Discussion(ctx, caseTitle)
	if err != nil {
		return afd.CaseMeta{}, err
	}
	meta, err := r.Existence(ctx, caseTitle)
	if err != nil {
		return afd.CaseMeta{}, err
	}
	if err := r.store(ctx, caseTitle, doc); err != nil {
		return afd.CaseMeta{}, err
	}
	return meta, nil
}

// Discussion fetches the deletion discussion of caseTitle. An absent
// discussion page is not an error: its text is the does-not-exist marker.
func (r *Resolver) Discussion(ctx context.Context, caseTitle string) (afd.DeletionDiscussion, error) {
	title := afd.DiscussionTitle(caseTitle)
	doc := afd.DeletionDiscussion{
		CaseTitle: title,
		URL:       afd.PageURL(title),
	}

	page, err := r.client.QueryMetadata(ctx, title)
	if err != nil {
		return doc, fmt.Errorf("query discussion: %w", err)
	}
	if page.Kind != wiki.QueryFound {
		r.logger.Debug("discussion page absent", zap.String("title", title), zap.Stringer("kind", page.Kind))
		doc.Text = afd.DoesNotExistText
		return doc, nil
	}

	text, err := r.client.FetchRendered(ctx, title)
	if err != nil {
		return doc, fmt.Errorf("fetch discussion: %w", err)
	}
	rev, err := r.client.EarliestRevision(ctx, title)
	if err != nil {
		return doc, fmt.Errorf("earliest discussion revision: %w", err)
	}
	ts := rev.Timestamp.UTC()
	doc.Text = text
	doc.EarliestRevision = &ts
	return doc, nil
}

// Existence classifies the article behind caseTitle.
func (r *Resolver) Existence(ctx context.Context, caseTitle string) (afd.CaseMeta, error) {
	meta := afd.CaseMeta{CleanedTitle: caseTitle}

	res, err := r.client.Parse(ctx, caseTitle)
	if err != nil {
		return meta, fmt.Errorf("parse article: %w", err)
	}
	switch res.Kind {
	case wiki.ParseAPIError:
		r.logger.Debug("article does not resolve",
			zap.String("title", caseTitle), zap.String("code", res.Err.Code), zap.String("info", res.Err.Info))
	case wiki.ParseRedirect:
		meta.ReturnedTitle = afd.StringPtr(res.RedirectTarget)
		meta.PageID = afd.RedirectedPageID()
	case wiki.ParseFound:
		meta.ReturnedTitle = afd.StringPtr(res.Title)
		if strings.TrimSpace(res.Text) == "" {
			break
		}
		meta.PageExists = true
		meta.PageID = afd.NumericPageID(res.PageID)
	default:
		return meta, fmt.Errorf("parse article: unknown result kind %d", res.Kind)
	}
	return meta, nil
}

// RevisionDate returns the earliest revision timestamp of title.
func (r *Resolver) RevisionDate(ctx context.Context, title string) (time.Time, error) {
	rev, err := r.client.EarliestRevision(ctx, title)
	if err != nil {
		return time.Time{}, err
	}
	return rev.Timestamp.UTC(), nil
}

func (r *Resolver) store(ctx context.Context, caseTitle string, doc afd.DeletionDiscussion) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode discussion: %w", err)
	}
	uri, err := r.docs.PutObject(ctx, titlecodec.DocumentName(caseTitle), DocumentContentType, &buf)
	if errors.Is(err, afd.ErrInvalidName) {
		return fmt.Errorf("store discussion: %w", err)
	}
	if err != nil {
		return fmt.Errorf("%w: store discussion: %w", afd.ErrStorage, err)
	}
	r.logger.Debug("stored discussion", zap.String("title", caseTitle), zap.String("uri", uri))
	return nil
}
