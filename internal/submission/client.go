// Package submission posts pending records to the remote product endpoint.
package submission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/cybertec-postgresql/submitq/internal/log"
	"github.com/cybertec-postgresql/submitq/internal/metrics"
	"github.com/cybertec-postgresql/submitq/internal/queue"
)

const (
	// DefaultEndpoint is where products are submitted unless configured otherwise
	DefaultEndpoint = "https://app.getswipe.in/api/public/add"
	// DefaultTimeout bounds a single submission
	DefaultTimeout = 30 * time.Second

	attachmentField       = "files[]"
	attachmentFilename    = "product.jpg"
	attachmentContentType = "image/jpeg"

	maxResponseSize = 1 << 20
)

// Client submits records over HTTP. It is safe for concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *logrus.Entry
}

// NewClient returns a client posting to endpoint. A zero timeout selects
// DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   log.WithComponent("submission"),
	}
}

// Endpoint returns the URL records are posted to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Submit performs one POST of record. It returns nil only when the server
// answered with a JSON object whose success field is true. The HTTP status
// code is not consulted.
func (c *Client) Submit(ctx context.Context, record queue.PendingRecord) error {
	err := c.submit(ctx, record)
	result := "success"
	if err != nil {
		result = string(ReasonOf(err))
	}
	metrics.SubmitAttemptsTotal.WithLabelValues(result).Inc()

	logger := c.logger.WithFields(logrus.Fields{"id": record.ID, "result": result})
	if err != nil {
		logger.WithError(err).Debug("Submission failed")
	} else {
		logger.Debug("Submission succeeded")
	}
	return err
}

func (c *Client) submit(ctx context.Context, record queue.PendingRecord) error {
	body, contentType, err := encodeForm(record)
	if err != nil {
		return &Error{Reason: ReasonTransport, Err: fmt.Errorf("failed to encode form: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return &Error{Reason: ReasonTransport, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Reason: ReasonTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &Error{Reason: ReasonTransport, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	return parseResponse(data, resp.StatusCode)
}

func parseResponse(data []byte, status int) error {
	if !gjson.ValidBytes(data) {
		return &Error{Reason: ReasonMalformedResponse, Err: fmt.Errorf("status %d: body is not JSON", status)}
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return &Error{Reason: ReasonMalformedResponse, Err: fmt.Errorf("status %d: body is not a JSON object", status)}
	}
	if doc.Get("success").Type != gjson.True {
		msg := doc.Get("message").String()
		if msg == "" {
			msg = "success flag not set"
		}
		return &Error{Reason: ReasonServerRejected, Err: fmt.Errorf("status %d: %s", status, msg)}
	}
	return nil
}

func encodeForm(record queue.PendingRecord) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, name := range queue.FieldNames {
		if err := w.WriteField(name, record.Fields[name]); err != nil {
			return nil, "", err
		}
	}

	if record.Attachment != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, attachmentField, attachmentFilename))
		h.Set("Content-Type", attachmentContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(record.Attachment); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
