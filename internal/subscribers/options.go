package subscribers

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/sheetdesk/sheetdesk/internal/apiclient"
	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/platform/cache"
)

// AnswerOptions holds both answer-code dropdowns.
type AnswerOptions struct {
	Parasha domain.Options `json:"parasha"`
	Halacha domain.Options `json:"halacha"`
}

// DefaultAnswerOptions are used when the API cannot be reached.
func DefaultAnswerOptions() AnswerOptions {
	return AnswerOptions{Parasha: domain.ParashaAnswers, Halacha: domain.HalachaAnswers}
}

// OptionsService loads answer options through a shared cache. Concurrent
// misses collapse into one API round trip.
type OptionsService struct {
	logger *slog.Logger
	cache  *cache.JSON
	group  singleflight.Group
}

// NewOptionsService constructs an OptionsService.
func NewOptionsService(logger *slog.Logger, c *cache.JSON) *OptionsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OptionsService{logger: logger, cache: c}
}

// Load returns the answer options, falling back to the built-in lists.
func (s *OptionsService) Load(ctx context.Context, api *apiclient.Client) AnswerOptions {
	v, err, _ := s.group.Do("answers", func() (any, error) {
		var out AnswerOptions
		err := s.cache.Fetch(ctx, &out, func(ctx context.Context) (any, error) {
			return fetchAnswerOptions(ctx, api)
		}, "answers")
		return out, err
	})
	if err != nil {
		s.logger.Warn("load answer options, using defaults", slog.Any("error", err))
		return DefaultAnswerOptions()
	}
	opts := v.(AnswerOptions)
	if len(opts.Parasha) == 0 {
		opts.Parasha = domain.ParashaAnswers
	}
	if len(opts.Halacha) == 0 {
		opts.Halacha = domain.HalachaAnswers
	}
	return opts
}

func fetchAnswerOptions(ctx context.Context, api *apiclient.Client) (AnswerOptions, error) {
	parasha, err := api.ParashaAnswers(ctx)
	if err != nil {
		return AnswerOptions{}, fmt.Errorf("parasha answers: %w", err)
	}
	halacha, err := api.HalachaAnswers(ctx)
	if err != nil {
		return AnswerOptions{}, fmt.Errorf("halacha answers: %w", err)
	}
	return AnswerOptions{Parasha: parasha, Halacha: halacha}, nil
}
