package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/akozyrev/ragshield/internal/core/domain"
	"github.com/akozyrev/ragshield/internal/core/ports"
)

const viewRelation = "can_view"

// privacyFilter removes candidates the subject may not see. It runs strictly
// between fusion and recording; nothing downstream of it ever observes an
// unauthorized document. Oracle calls for distinct candidates run
// concurrently under a bounded cap, each with its own timeout, and any
// failure denies that candidate only (fail-closed).
type privacyFilter struct {
	oracle         ports.AuthorizationOracle
	checkTimeout   time.Duration
	maxConcurrency int
}

func newPrivacyFilter(oracle ports.AuthorizationOracle, checkTimeout time.Duration, maxConcurrency int) *privacyFilter {
	if checkTimeout <= 0 {
		checkTimeout = 2 * time.Second
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	return &privacyFilter{
		oracle:         oracle,
		checkTimeout:   checkTimeout,
		maxConcurrency: maxConcurrency,
	}
}

// visible returns the candidates the subject is authorized to view, in the
// exact order they arrived.
func (f *privacyFilter) visible(ctx context.Context, subject string, candidates []domain.FusedCandidate) []domain.FusedCandidate {
	if len(candidates) == 0 {
		return nil
	}

	allowed := make([]bool, len(candidates))
	gate := make(chan struct{}, f.maxConcurrency)
	var wg sync.WaitGroup

	for i, candidate := range candidates {
		wg.Add(1)
		gate <- struct{}{}
		go func(i int, documentID string) {
			defer wg.Done()
			defer func() { <-gate }()

			checkCtx, cancel := context.WithTimeout(ctx, f.checkTimeout)
			defer cancel()

			ok, err := f.oracle.Check(checkCtx, subjectRef(subject), viewRelation, documentRef(documentID))
			if err != nil {
				slog.Warn("authorization_uncertain",
					"subject", subject,
					"document_id", documentID,
					"error", err,
				)
				return
			}
			allowed[i] = ok
		}(i, candidate.DocumentID)
	}
	wg.Wait()

	out := make([]domain.FusedCandidate, 0, len(candidates))
	for i, candidate := range candidates {
		if allowed[i] {
			out = append(out, candidate)
		}
	}
	return out
}

func subjectRef(subject string) string {
	if strings.Contains(subject, ":") {
		return subject
	}
	return "user:" + subject
}

func documentRef(id string) string {
	return "document:" + id
}
