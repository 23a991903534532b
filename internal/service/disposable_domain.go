package service

import (
	"context"
	"log/slog"
	"strings"

	"auditstore/internal/feed"
	"auditstore/internal/model"
	"auditstore/internal/repository"
)

// DisposableDomainReason is stored with every domain taken from the feed.
const DisposableDomainReason = "Disposable Email Domain"

// DisposableDomainService keeps the forbidden domain table in line with the
// public list of disposable e-mail providers.
type DisposableDomainService interface {
	// UpdateDomainsList downloads the feed and upserts every listed domain.
	// A feed that cannot be fetched is logged and leaves the table as is;
	// that case returns nil. A failed write is logged and returned.
	UpdateDomainsList(ctx context.Context) error
}

type disposableDomainService struct {
	source feed.Source
	repo   repository.ForbiddenDomainRepository
	logger *slog.Logger
}

func NewDisposableDomainService(source feed.Source, repo repository.ForbiddenDomainRepository, logger *slog.Logger) DisposableDomainService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &disposableDomainService{source: source, repo: repo, logger: logger}
}

func (s *disposableDomainService) UpdateDomainsList(ctx context.Context) error {
	body, err := s.source.Fetch(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "unable to fetch disposable email domains list", slog.Any("error", err))
		return nil
	}

	domains := parseDomains(body)
	if len(domains) == 0 {
		s.logger.WarnContext(ctx, "disposable email domains list is empty")
		return nil
	}

	rows := make([]map[string]any, len(domains))
	for i, d := range domains {
		rows[i] = map[string]any{
			model.ForbiddenDomainDomain: d,
			model.ForbiddenDomainReason: DisposableDomainReason,
		}
	}
	if err := s.repo.MassInsert(ctx, rows); err != nil {
		s.logger.ErrorContext(ctx, "unable to store disposable email domains",
			slog.Int("domains", len(rows)),
			slog.Any("error", err),
		)
		return err
	}

	s.logger.InfoContext(ctx, "disposable email domains updated", slog.Int("domains", len(rows)))
	return nil
}

// parseDomains splits a feed body into trimmed, non-empty, unique lines in
// first-seen order.
func parseDomains(body string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(body, "\n") {
		d := strings.TrimSpace(line)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
