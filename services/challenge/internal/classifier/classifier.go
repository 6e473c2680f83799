// Package classifier calls the food detection model service. The model is a
// hard dependency of challenge verification: when it is unreachable the
// submission fails with ErrUnavailable instead of guessing an outcome.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"snapstreak/pkg/domain"
)

const (
	downloadTimeout = 10 * time.Second
	predictTimeout  = 30 * time.Second
	maxImageBytes   = 10 << 20
)

// ErrUnavailable wraps every transport or model failure. Callers treat it as
// "try again later", never as a verdict on the photo.
var ErrUnavailable = errors.New("classifier unavailable")

// ErrNoDetection is returned when the model finds nothing in the image.
var ErrNoDetection = errors.New("no food detected")

// Client talks to the detection service over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	download *http.Client
}

// New creates a client for the detection service at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: predictTimeout},
		download: &http.Client{Timeout: downloadTimeout},
	}
}

// The model reports detections as class ids into the label catalog plus a
// 0-1 score.
type prediction struct {
	Class int     `json:"class"`
	Score float64 `json:"score"`
}

type predictResponse struct {
	Predictions []prediction `json:"predictions"`
}

// Predict downloads the image and returns the model's most confident
// detection, with the class id resolved against the catalog and the score
// rescaled to 0-100.
func (c *Client) Predict(ctx context.Context, imageURL string) (domain.Prediction, error) {
	image, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "photo.jpg")
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if _, err := part.Write(image); err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := form.Close(); err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &body)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Prediction{}, fmt.Errorf("%w: predict returned %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(parsed.Predictions) == 0 {
		return domain.Prediction{}, ErrNoDetection
	}

	top := parsed.Predictions[0]
	for _, p := range parsed.Predictions[1:] {
		if p.Score > top.Score {
			top = p
		}
	}
	if top.Class < 0 || top.Class >= len(Classes) {
		return domain.Prediction{}, fmt.Errorf("%w: class id %d outside catalog", ErrUnavailable, top.Class)
	}
	return domain.Prediction{
		Class:   Classes[top.Class],
		ClassID: top.Class,
		Score:   top.Score * 100,
	}, nil
}

func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}
