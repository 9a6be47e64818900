package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/linkpulse/linkpulse/internal/app/model"
	"github.com/linkpulse/linkpulse/internal/app/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrInvalidURL signals that the destination is not an absolute URL.
	ErrInvalidURL = errors.New("invalid destination url")

	// ErrInvalidExpiry signals an expiry instant that is not in the future.
	ErrInvalidExpiry = errors.New("expiry must be in the future")

	// ErrAliasConflict signals that the requested custom alias is taken.
	ErrAliasConflict = errors.New("custom alias already in use")

	// ErrAllocationExhausted signals that every generation attempt collided.
	ErrAllocationExhausted = errors.New("could not allocate a unique short code")

	// ErrLinkExpired signals resolution of a link past its expiry.
	ErrLinkExpired = errors.New("link expired")

	// ErrLinkGone signals resolution of a deactivated link.
	ErrLinkGone = errors.New("link no longer active")
)

const (
	codeLength   = 7
	maxAttempts  = 5
	destCacheTTL = time.Hour

	// Ambiguous glyphs (0/O, 1/l/I) are excluded.
	codeAlphabet = "23456789abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ"

	bloomEstimatedCodes    = 1_000_000
	bloomFalsePositiveRate = 0.01
)

// ClickRecorder publishes one click observation for later aggregation.
type ClickRecorder interface {
	Publish(linkCode, ip, userAgent string) error
}

// LinkService defines behaviour-level operations on links.
type LinkService interface {
	Shorten(ctx context.Context, input ShortenInput) (*model.Link, error)
	Resolve(ctx context.Context, code, ip, userAgent string) (string, error)
	LatestForecast(ctx context.Context, code string) (*model.Forecast, error)
	Warm(ctx context.Context) error
}

type linkService struct {
	logger    *zap.Logger
	repo      repository.LinkRepository
	forecasts repository.ForecastRepository
	cache     *redis.Client
	clicks    ClickRecorder

	mu    sync.Mutex
	codes *bloom.BloomFilter
}

// LinkServiceDeps bundles the collaborators of the link service. Cache and
// Clicks may be nil; the service degrades to store-only behaviour.
type LinkServiceDeps struct {
	Logger    *zap.Logger
	Links     repository.LinkRepository
	Forecasts repository.ForecastRepository
	Cache     *redis.Client
	Clicks    ClickRecorder
}

// NewLinkService returns a service implementation backed by the given
// repositories.
func NewLinkService(deps LinkServiceDeps) LinkService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &linkService{
		logger:    logger,
		repo:      deps.Links,
		forecasts: deps.Forecasts,
		cache:     deps.Cache,
		clicks:    deps.Clicks,
		codes:     bloom.NewWithEstimates(bloomEstimatedCodes, bloomFalsePositiveRate),
	}
}

// ShortenInput captures data required to allocate a link.
type ShortenInput struct {
	DestinationURL string
	CustomAlias    string
	OwnerID        *uint
	ExpiresAt      *time.Time
}

// Warm seeds the in-memory code filter from the store so pre-existing
// codes are skipped without a round trip. Best effort: the unique
// constraint stays authoritative either way.
func (s *linkService) Warm(ctx context.Context) error {
	links, err := s.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("warm code filter: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range links {
		s.codes.AddString(links[i].ShortCode)
	}
	return nil
}

func (s *linkService) Shorten(ctx context.Context, input ShortenInput) (*model.Link, error) {
	parsed, err := url.Parse(input.DestinationURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, ErrInvalidURL
	}

	if input.ExpiresAt != nil && !input.ExpiresAt.After(time.Now()) {
		return nil, ErrInvalidExpiry
	}

	if input.CustomAlias != "" {
		return s.createWithAlias(ctx, input)
	}
	return s.createWithGeneratedCode(ctx, input)
}

func (s *linkService) createWithAlias(ctx context.Context, input ShortenInput) (*model.Link, error) {
	link := newLink(input.CustomAlias, input)
	if err := s.repo.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrCodeTaken) {
			return nil, ErrAliasConflict
		}
		return nil, fmt.Errorf("create link: %w", err)
	}
	s.rememberCode(link.ShortCode)
	return link, nil
}

// createWithGeneratedCode attempts a bounded number of random codes. A
// unique-constraint rejection means a concurrent allocator won the same
// code between generation and insert; that is a collision to retry, not a
// failure. Collisions are statistically rare, so an unbounded loop would
// only ever spin under a bug or a near-full namespace.
func (s *linkService) createWithGeneratedCode(ctx context.Context, input ShortenInput) (*model.Link, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := generateCode(codeLength)
		if err != nil {
			return nil, fmt.Errorf("generate short code: %w", err)
		}

		if s.maybeKnownCode(code) {
			continue
		}

		link := newLink(code, input)
		err = s.repo.Create(ctx, link)
		if err == nil {
			s.rememberCode(code)
			return link, nil
		}
		if errors.Is(err, repository.ErrCodeTaken) {
			s.rememberCode(code)
			s.logger.Debug("short code collision, retrying",
				zap.String("code", code),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, fmt.Errorf("create link: %w", err)
	}
	return nil, ErrAllocationExhausted
}

func (s *linkService) Resolve(ctx context.Context, code, ip, userAgent string) (string, error) {
	if dest := s.cachedDestination(ctx, code); dest != "" {
		// The conditional increment re-checks active/expiry, so a stale
		// cache entry cannot resurrect a dead link.
		if err := s.repo.IncrementClicks(ctx, code); err == nil {
			s.recordClick(code, ip, userAgent)
			return dest, nil
		}
		s.evictDestination(ctx, code)
	}

	link, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return "", err
	}

	if link.Expired(time.Now()) {
		// Lazy deactivation: flipped on read, never resurrected.
		if link.Active {
			if derr := s.repo.Deactivate(ctx, code); derr != nil {
				s.logger.Error("failed to deactivate expired link",
					zap.String("code", code), zap.Error(derr))
			}
		}
		return "", ErrLinkExpired
	}
	if !link.Active {
		return "", ErrLinkGone
	}

	if err := s.repo.IncrementClicks(ctx, code); err != nil {
		return "", fmt.Errorf("count click: %w", err)
	}

	s.cacheDestination(ctx, link)
	s.recordClick(code, ip, userAgent)
	return link.DestinationURL, nil
}

func (s *linkService) LatestForecast(ctx context.Context, code string) (*model.Forecast, error) {
	if _, err := s.repo.GetByCode(ctx, code); err != nil {
		return nil, err
	}
	return s.forecasts.LatestByLinkCode(ctx, code)
}

func newLink(code string, input ShortenInput) *model.Link {
	return &model.Link{
		ShortCode:      code,
		DestinationURL: input.DestinationURL,
		OwnerID:        input.OwnerID,
		ExpiresAt:      input.ExpiresAt,
		Active:         true,
	}
}

func (s *linkService) maybeKnownCode(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes.TestString(code)
}

func (s *linkService) rememberCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes.AddString(code)
}

func (s *linkService) recordClick(code, ip, userAgent string) {
	if s.clicks == nil {
		return
	}
	go func() {
		if err := s.clicks.Publish(code, ip, userAgent); err != nil {
			s.logger.Error("failed to publish click event",
				zap.String("code", code), zap.Error(err))
		}
	}()
}

func destCacheKey(code string) string {
	return "link:dest:" + code
}

func (s *linkService) cachedDestination(ctx context.Context, code string) string {
	if s.cache == nil {
		return ""
	}
	dest, err := s.cache.Get(ctx, destCacheKey(code)).Result()
	if err != nil {
		return ""
	}
	return dest
}

func (s *linkService) cacheDestination(ctx context.Context, link *model.Link) {
	if s.cache == nil {
		return
	}
	ttl := destCacheTTL
	if link.ExpiresAt != nil {
		if remaining := time.Until(*link.ExpiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, destCacheKey(link.ShortCode), link.DestinationURL, ttl).Err(); err != nil {
		s.logger.Debug("failed to cache destination",
			zap.String("code", link.ShortCode), zap.Error(err))
	}
}

func (s *linkService) evictDestination(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, destCacheKey(code)).Err()
}

// generateCode draws length characters from the unambiguous alphabet using
// crypto/rand. Modulo bias is avoided by rejecting bytes past the largest
// multiple of the alphabet size.
func generateCode(length int) (string, error) {
	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	limit := byte(256 - 256%len(codeAlphabet))

	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
