// Package search gathers ranked knowledge snippets for the knowledge_search
// handler. Each backend implements Provider; Multi fans a query out to all
// registered providers and merges their hits by score.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// Searcher returns up to topK snippets ranked by descending score.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]model.Snippet, error)
}

// Provider is a named Searcher backend.
type Provider interface {
	Searcher
	Name() string
}

// ErrNoProviders is returned by Multi when nothing is registered.
var ErrNoProviders = errors.New("no search providers configured")

// Multi queries every provider concurrently. A provider failure is logged and
// skipped; Search fails only when every provider failed.
type Multi struct {
	mu        sync.RWMutex
	providers []Provider
}

func NewMulti(providers ...Provider) *Multi {
	m := &Multi{}
	for _, p := range providers {
		m.Register(p)
	}
	return m
}

func (m *Multi) Register(p Provider) {
	if p == nil {
		return
	}
	m.mu.Lock()
	m.providers = append(m.providers, p)
	m.mu.Unlock()
}

// Providers returns the registered provider names.
func (m *Multi) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return names
}

func (m *Multi) Configured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.providers) > 0
}

func (m *Multi) Search(ctx context.Context, query string, topK int) ([]model.Snippet, error) {
	m.mu.RLock()
	providers := append([]Provider(nil), m.providers...)
	m.mu.RUnlock()

	if len(providers) == 0 {
		return nil, errx.Service("search", ErrNoProviders)
	}
	if topK <= 0 {
		topK = 5
	}

	type outcome struct {
		name     string
		snippets []model.Snippet
		err      error
	}
	results := make([]outcome, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			snippets, err := p.Search(ctx, query, topK)
			results[i] = outcome{name: p.Name(), snippets: snippets, err: err}
		}(i, p)
	}
	wg.Wait()

	var (
		merged []model.Snippet
		errs   []error
		seen   = map[string]bool{}
	)
	for _, r := range results {
		if r.err != nil {
			logx.Warn().Err(r.err).Str("provider", r.name).Msg("search provider failed")
			errs = append(errs, fmt.Errorf("%s: %w", r.name, r.err))
			continue
		}
		for _, s := range r.snippets {
			key := strings.ToLower(strings.TrimSpace(s.Text))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if s.Source == "" {
				s.Source = r.name
			}
			merged = append(merged, s)
		}
	}
	if len(errs) == len(providers) {
		return nil, errx.Service("search", errors.Join(errs...))
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// Format renders snippets as a numbered list for prompts.
func Format(snippets []model.Snippet) string {
	if len(snippets) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for i, s := range snippets {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, s.Source, s.Text)
	}
	return b.String()
}

var _ Searcher = (*Multi)(nil)
