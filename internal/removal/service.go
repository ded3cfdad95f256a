// Package removal wraps the remove.bg API and the local image transforms
// applied to its output.
package removal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/stickerlab/stickerlab/internal/imaging"
	"github.com/stickerlab/stickerlab/pkg/config"
	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
	"github.com/stickerlab/stickerlab/pkg/metrics"
	"github.com/stickerlab/stickerlab/pkg/storage/localfs"
)

const (
	removePath       = "/removebg"
	maxResponseBytes = 32 << 20
)

// Service removes the background of a photo and prepares the result as a
// sticker image.
type Service interface {
	// RemoveBackground uploads the image at localImagePath and returns the
	// path of the transparent PNG written to the cache directory.
	RemoveBackground(ctx context.Context, localImagePath string) (string, error)
	// ApplyWatermark returns path unchanged when isPaid is true.
	ApplyWatermark(ctx context.Context, path string, isPaid bool) (string, error)
	NormalizeForStickerFormat(ctx context.Context, path string) (string, error)
}

type ServiceParams struct {
	Config         config.RemoveBGConfig
	HTTPClient     *http.Client
	Images         *imaging.Processor
	Output         *localfs.Dir
	Limiter        *rate.Limiter
	MaxSourceBytes int64
	Logger         *logger.Logger
	Metrics        *metrics.RemovalMetrics
	Now            func() time.Time
}

type service struct {
	cfg            config.RemoveBGConfig
	endpoint       string
	http           *http.Client
	images         *imaging.Processor
	output         *localfs.Dir
	limiter        *rate.Limiter
	maxSourceBytes int64
	logg           *logger.Logger
	metrics        *metrics.RemovalMetrics
	now            func() time.Time
}

type removeRequest struct {
	ImageFileB64 string `json:"image_file_b64"`
	Size         string `json:"size"`
}

func NewService(params ServiceParams) (Service, error) {
	if params.Images == nil {
		return nil, fmt.Errorf("image processor required")
	}
	if params.Output == nil {
		return nil, fmt.Errorf("output directory required")
	}
	cfg := params.Config
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("removal base url required")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Size == "" {
		cfg.Size = "preview"
	}

	svc := &service{
		cfg:            cfg,
		endpoint:       strings.TrimRight(cfg.BaseURL, "/") + removePath,
		http:           params.HTTPClient,
		images:         params.Images,
		output:         params.Output,
		limiter:        params.Limiter,
		maxSourceBytes: params.MaxSourceBytes,
		logg:           params.Logger,
		metrics:        params.Metrics,
		now:            params.Now,
	}
	if svc.http == nil {
		svc.http = &http.Client{}
	}
	if svc.limiter == nil {
		svc.limiter = NewLimiter(cfg)
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// NewLimiter builds the limiter shared by every call in the process.
func NewLimiter(cfg config.RemoveBGConfig) *rate.Limiter {
	if cfg.RatePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
}

func (s *service) RemoveBackground(ctx context.Context, localImagePath string) (string, error) {
	ctx = s.logg.WithSourceImage(ctx, localImagePath)

	data, err := localfs.ReadFile(localImagePath, s.maxSourceBytes)
	if errors.Is(err, localfs.ErrTooLarge) {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "source image is too large").
			WithDetails(map[string]any{"maxBytes": s.maxSourceBytes})
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeIO, err, "read source image")
	}
	if _, err := imaging.Sniff(data); err != nil {
		return "", err
	}
	if strings.TrimSpace(s.cfg.APIKey) == "" {
		return "", serviceError(ReasonNotConfigured, 0, "api key is not configured", nil)
	}

	body, err := json.Marshal(removeRequest{
		ImageFileB64: base64.StdEncoding.EncodeToString(data),
		Size:         s.cfg.Size,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode removal request")
	}

	start := s.now()
	result, err := s.call(ctx, body)
	if err != nil {
		s.metrics.ObserveCall("error", s.now().Sub(start))
		s.logg.Error(ctx, "background removal failed", err)
		return "", err
	}
	s.metrics.ObserveCall("ok", s.now().Sub(start))

	name := fmt.Sprintf("sticker_%d_%s.png", s.now().UnixMilli(), shortID())
	out, err := s.output.WriteBytes(ctx, name, result)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeIO, err, "write removal output")
	}
	s.logg.Info(s.logg.WithField(ctx, "output", out), "background removed")
	return out, nil
}

func (s *service) call(ctx context.Context, body []byte) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	if s.cfg.InitialBackoff > 0 {
		b.InitialInterval = s.cfg.InitialBackoff
	}
	if s.cfg.MaxBackoff > 0 {
		b.MaxInterval = s.cfg.MaxBackoff
	}

	attempt := 0
	result, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempt++
		return s.attempt(ctx, body)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"attempt": attempt,
				"wait_ms": wait.Milliseconds(),
				"error":   err.Error(),
			}), "retrying background removal")
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		if pkgerrors.As(err) == nil {
			return nil, serviceError(ReasonNetwork, 0, "", err)
		}
		return nil, err
	}
	return result, nil
}

func (s *service) attempt(ctx context.Context, body []byte) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(serviceError(ReasonBadResponse, 0, "", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")
	req.Header.Set("X-Api-Key", s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		s.metrics.IncAttempt(ReasonNetwork)
		return nil, serviceError(ReasonNetwork, 0, "", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		s.metrics.IncAttempt(ReasonNetwork)
		return nil, serviceError(ReasonNetwork, resp.StatusCode, "", err)
	}

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		if _, err := imaging.Sniff(payload); err != nil {
			s.metrics.IncAttempt(ReasonBadResponse)
			return nil, backoff.Permanent(serviceError(ReasonBadResponse, status, "response is not an image", err))
		}
		s.metrics.IncAttempt("ok")
		return payload, nil
	case status == http.StatusTooManyRequests:
		s.metrics.IncAttempt(ReasonRateLimited)
		return nil, serviceError(ReasonRateLimited, status, errorTitle(payload), nil)
	case status >= 500:
		s.metrics.IncAttempt(ReasonUpstream)
		return nil, serviceError(ReasonUpstream, status, errorTitle(payload), nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		s.metrics.IncAttempt(ReasonAuth)
		return nil, backoff.Permanent(serviceError(ReasonAuth, status, errorTitle(payload), nil))
	default:
		s.metrics.IncAttempt(ReasonRejected)
		return nil, backoff.Permanent(serviceError(ReasonRejected, status, errorTitle(payload), nil))
	}
}

func (s *service) ApplyWatermark(ctx context.Context, path string, isPaid bool) (string, error) {
	if isPaid {
		return path, nil
	}
	return s.images.Watermark(ctx, path)
}

func (s *service) NormalizeForStickerFormat(ctx context.Context, path string) (string, error) {
	return s.images.Normalize(ctx, path)
}

// errorTitle pulls the first error title out of a remove.bg error body.
func errorTitle(payload []byte) string {
	if !gjson.ValidBytes(payload) {
		return ""
	}
	res := gjson.GetBytes(payload, "errors.0.title")
	if !res.Exists() {
		return ""
	}
	title := res.String()
	if code := gjson.GetBytes(payload, "errors.0.code").String(); code != "" {
		title = fmt.Sprintf("%s (%s)", title, code)
	}
	return title
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
