package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/vincent-petithory/dataurl"

	"fieldmic/internal/domain"
	"fieldmic/internal/logging"
	"fieldmic/internal/ports"
)

const (
	recordingField    = "audio"
	recordingFilename = "recording.webm"

	// The service returns MP3 without declaring it.
	defaultSpeechMime = "audio/mpeg"
)

// Config controls the analysis service client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Rewriter adjusts text before synthesis. Optional.
	Rewriter ports.TextRewriter
	Logger   logging.Logger
}

// Client talks to the report analysis service: recording analysis, speech synthesis and
// the persisted message log.
type Client struct {
	http     *resty.Client
	rewriter ports.TextRewriter
	logger   logging.Logger
	now      func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:5000"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		httpClient.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	return &Client{
		http:     httpClient,
		rewriter: cfg.Rewriter,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Analyze uploads a finished recording and returns the structured report.
func (c *Client) Analyze(ctx context.Context, recording domain.Artifact) (domain.Report, error) {
	if recording.Empty() {
		return domain.Report{}, fmt.Errorf("%w: recording is empty", domain.ErrNetworkFailure)
	}
	contentType := recording.MimeType
	if contentType == "" {
		contentType = "audio/webm"
	}

	var payload reportPayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField(recordingField, recordingFilename, contentType, bytes.NewReader(recording.Data)).
		SetResult(&payload).
		SetError(&errorPayload{}).
		Post("/api/analyze")
	if err := c.check("analyze", resp, err); err != nil {
		return domain.Report{}, err
	}

	report := c.toReport(payload)
	c.logger.Infof("recording analyzed id=%s bytes=%d status=%s", report.ID, len(recording.Data), report.Status)
	return report, nil
}

// Synthesize converts text into speech audio.
func (c *Client) Synthesize(ctx context.Context, text string) (domain.Artifact, error) {
	spoken := text
	if c.rewriter != nil {
		rewritten, err := c.rewriter.Apply(text)
		if err != nil {
			c.logger.Warnf("pronunciation rules failed, using original text: %v", err)
		} else {
			spoken = rewritten
		}
	}

	var payload speechPayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": spoken}).
		SetResult(&payload).
		SetError(&errorPayload{}).
		Post("/api/tts")
	if err := c.check("tts", resp, err); err != nil {
		return domain.Artifact{}, err
	}

	artifact, err := decodeAudio(payload.AudioBase64)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: tts: %v", domain.ErrNetworkFailure, err)
	}
	if artifact.Empty() {
		return domain.Artifact{}, fmt.Errorf("%w: tts returned no audio", domain.ErrNetworkFailure)
	}
	return artifact, nil
}

// ListMessages returns every persisted report in the order the service returns them.
func (c *Client) ListMessages(ctx context.Context) ([]domain.Report, error) {
	var payload []reportPayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&payload).
		SetError(&errorPayload{}).
		Get("/api/messages")
	if err := c.check("messages", resp, err); err != nil {
		return nil, err
	}

	reports := make([]domain.Report, 0, len(payload))
	for _, item := range payload {
		reports = append(reports, c.toReport(item))
	}
	return reports, nil
}

// DeleteMessage removes a persisted report.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("message id is required")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorPayload{}).
		Delete("/api/messages/" + url.PathEscape(id))
	return c.check("delete message", resp, err)
}

func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrNetworkFailure, op, err)
	}
	if resp.IsError() {
		detail := resp.Status()
		if body, ok := resp.Error().(*errorPayload); ok && body.Message != "" {
			detail = body.Message
		}
		return fmt.Errorf("%w: %s: %s", domain.ErrNetworkFailure, op, detail)
	}
	return nil
}

// toReport converts a service payload. Undecodable summary audio is dropped so playback
// falls back to synthesizing the summary text.
func (c *Client) toReport(p reportPayload) domain.Report {
	report := domain.Report{
		ID:           string(p.ID),
		OriginalText: p.OriginalText,
		Summary:      p.Summary,
		Timestamp:    c.parseTimestamp(p.Timestamp),
		Status:       domain.ReportStatus(p.Status),
	}
	if report.Status == "" {
		report.Status = domain.ReportProcessed
	}
	if p.Extraction != nil {
		extraction := p.Extraction.toDomain()
		report.Extraction = &extraction
	}
	if p.SummaryAudioBase64 != "" {
		audio, err := decodeAudio(p.SummaryAudioBase64)
		switch {
		case err != nil:
			c.logger.Warnf("ignoring summary audio id=%s: %v", report.ID, err)
		case !audio.Empty():
			report.SummaryAudio = &audio
		}
	}
	return report
}

func (c *Client) parseTimestamp(raw string) time.Time {
	if raw == "" {
		return c.now()
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		c.logger.Debugf("unparseable timestamp %q: %v", raw, err)
		return c.now()
	}
	return ts.Local()
}

// decodeAudio accepts bare base64 or a data URL and determines the audio type from the
// declared media type or, failing that, from the bytes.
func decodeAudio(payload string) (domain.Artifact, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return domain.Artifact{}, nil
	}

	var (
		data     []byte
		declared string
	)
	if strings.HasPrefix(payload, "data:") {
		parsed, err := dataurl.DecodeString(payload)
		if err != nil {
			return domain.Artifact{}, fmt.Errorf("decode data url: %w", err)
		}
		data = parsed.Data
		declared = parsed.MediaType.ContentType()
	} else {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return domain.Artifact{}, fmt.Errorf("decode base64 audio: %w", err)
		}
		data = decoded
	}

	mime := declared
	if mime == "" || !strings.HasPrefix(mime, "audio/") {
		detected := mimetype.Detect(data)
		mime = defaultSpeechMime
		if strings.HasPrefix(detected.String(), "audio/") {
			mime = detected.String()
		}
	}
	return domain.Artifact{MimeType: mime, Data: data}, nil
}

type messageID string

// UnmarshalJSON accepts numeric and string identifiers.
func (id *messageID) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		*id = messageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = messageID(n.String())
	return nil
}

type reportPayload struct {
	ID                 messageID          `json:"id"`
	OriginalText       string             `json:"originalText"`
	Summary            string             `json:"summary"`
	Extraction         *extractionPayload `json:"extraction"`
	SummaryAudioBase64 string             `json:"summaryAudioBase64"`
	Timestamp          string             `json:"timestamp"`
	Status             string             `json:"status"`
}

type extractionPayload struct {
	Command          string   `json:"command"`
	Direction        string   `json:"direction"`
	Location         string   `json:"location"`
	Target           string   `json:"target"`
	Urgency          string   `json:"urgency"`
	Confidence       string   `json:"confidence"`
	Notes            string   `json:"notes"`
	OriginalQuotes   []string `json:"originalQuotes"`
	Summary          string   `json:"summary"`
	ValidationIssues []string `json:"validationIssues"`
	IsValidated      bool     `json:"isValidated"`
}

func (p extractionPayload) toDomain() domain.Extraction {
	return domain.Extraction{
		Command:          p.Command,
		Direction:        p.Direction,
		Location:         p.Location,
		Target:           p.Target,
		Urgency:          domain.ParseUrgency(p.Urgency),
		Confidence:       domain.ParseConfidence(p.Confidence),
		Notes:            p.Notes,
		OriginalQuotes:   p.OriginalQuotes,
		Summary:          p.Summary,
		ValidationIssues: p.ValidationIssues,
		Validated:        p.IsValidated,
	}
}

type speechPayload struct {
	AudioBase64 string `json:"audioBase64"`
}

type errorPayload struct {
	Message string `json:"message"`
}
