package project

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"paperqa/internal/alignment"
	"paperqa/internal/contextutil"
	"paperqa/internal/corpus"
	"paperqa/internal/index"
)

// Builder loads a project's corpora from the ingestion collaborator and builds a Snapshot.
type Builder struct {
	source     corpus.Source
	lexicalOps []index.LexicalOption
}

// NewBuilder creates a Builder reading from source.
func NewBuilder(source corpus.Source, opts ...index.LexicalOption) *Builder {
	return &Builder{
		source:     source,
		lexicalOps: opts,
	}
}

// Build loads the manifest, paragraphs, code chunks and alignment concurrently,
// then builds the paper and code indices concurrently.
func (b *Builder) Build(ctx context.Context, projectID string) (*Snapshot, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	var (
		manifest   corpus.Manifest
		paragraphs []corpus.TextUnit
		chunks     []corpus.TextUnit
		entries    []corpus.AlignmentEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		manifest, err = b.source.Manifest(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load manifest: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		paragraphs, err = b.source.GetParagraphs(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load paragraphs: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		chunks, err = b.source.GetCodeChunks(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load code chunks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		entries, err = b.source.GetAlignment(gctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load alignment: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ProjectID: projectID,
		Manifest:  manifest,
		Alignment: alignment.New(entries),
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		snap.Paper = newCorpusIndex(corpus.Paper, paragraphs, b.lexicalOps...)
	})
	wg.Go(func() {
		snap.Code = newCorpusIndex(corpus.Code, chunks, b.lexicalOps...)
	})
	wg.Wait()
	snap.BuiltAt = time.Now().UTC()

	logger.InfoContext(ctx, "project snapshot built",
		"project_id", projectID,
		"paragraphs", len(paragraphs),
		"code_chunks", len(chunks),
		"alignment_links", snap.Alignment.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}
