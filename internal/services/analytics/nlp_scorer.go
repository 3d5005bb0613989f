package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalForge/internal/domain/models"
	"SignalForge/internal/domain/service"
	xhttp "SignalForge/pkg/http"
	"SignalForge/pkg/logger"
	"SignalForge/pkg/util"
)

const maxHeadlines = 20

// NLPConfig points the scorer at an external sentiment service.
type NLPConfig struct {
	BaseURL  string
	Path     string
	Timeout  time.Duration
	Attempts int
}

type scoreRequest struct {
	Texts []string `json:"texts"`
}

type scoreResponse struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// NLPScorer posts headlines to a sentiment service. When the service fails
// it scores with fallback instead, so a dead NLP endpoint degrades to keywords.
type NLPScorer struct {
	baseURL  string
	path     string
	attempts int
	client   *xhttp.Client
	fallback service.SentimentScorer
	log      *logger.Logger
}

func NewNLPScorer(cfg NLPConfig, fallback service.SentimentScorer, log *logger.Logger) *NLPScorer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.Path == "" {
		cfg.Path = "/sentiment"
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if log == nil {
		log = logger.Nop()
	}
	return &NLPScorer{
		baseURL:  cfg.BaseURL,
		path:     cfg.Path,
		attempts: cfg.Attempts,
		client:   xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		fallback: fallback,
		log:      log.Component("nlp"),
	}
}

func (s *NLPScorer) Score(ctx context.Context, items []models.NewsItem) (float64, float64, error) {
	if s.baseURL == "" && s.fallback != nil {
		return s.fallback.Score(ctx, items)
	}
	req := scoreRequest{Texts: make([]string, 0, len(items))}
	for _, it := range items {
		if len(req.Texts) == maxHeadlines {
			break
		}
		txt := it.Headline
		if it.Summary != "" {
			txt += ". " + util.Truncate(it.Summary, 280)
		}
		req.Texts = append(req.Texts, txt)
	}

	var resp scoreResponse
	err := s.postJSONWithRetry(ctx, s.path, req, &resp)
	if err == nil {
		return util.Clamp(resp.Score, -2, 2), util.Clamp(resp.Confidence, 0, 95), nil
	}
	if s.fallback == nil {
		return 0, 0, err
	}
	s.log.Warn("sentiment service failed, using fallback scorer", logger.Error(err))
	return s.fallback.Score(ctx, items)
}

func (s *NLPScorer) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	if s.baseURL == "" {
		return errors.New("sentiment service url not configured")
	}
	err := s.client.PostJSON(ctx, s.baseURL+path, payload, dest)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// postJSONWithRetry retries transient failures with a linear backoff.
func (s *NLPScorer) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}) error {
	var err error
	for i := 1; i <= s.attempts; i++ {
		err = s.postJSON(ctx, path, payload, dest)
		if err == nil {
			return nil
		}
		var se *xhttp.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return err
		}
		if i == s.attempts {
			break
		}
		select {
		case <-time.After(time.Duration(i) * 50 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

var _ service.SentimentScorer = (*NLPScorer)(nil)
