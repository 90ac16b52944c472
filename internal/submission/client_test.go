package submission

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertec-postgresql/submitq/internal/queue"
)

func pen(attachment []byte) queue.PendingRecord {
	return queue.NewRecord(queue.Fields{
		queue.FieldProductName: "Pen",
		queue.FieldProductType: "Accessories",
		queue.FieldPrice:       "10",
		queue.FieldTax:         "5",
	}, attachment)
}

func replying(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func TestSubmitSendsMultipartForm(t *testing.T) {
	var (
		fields   map[string]string
		filename string
		ctype    string
		payload  []byte
		method   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		f, hdr, err := r.FormFile("files[]")
		require.NoError(t, err)
		defer f.Close()
		filename = hdr.Filename
		ctype = hdr.Header.Get("Content-Type")
		payload, _ = io.ReadAll(f)
		_, _ = io.WriteString(w, `{"success": true, "message": "ok"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	require.NoError(t, c.Submit(context.Background(), pen([]byte{0xff, 0xd8, 0xff})))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, map[string]string{
		"product_name": "Pen",
		"product_type": "Accessories",
		"price":        "10",
		"tax":          "5",
	}, fields)
	assert.Equal(t, "product.jpg", filename)
	assert.Equal(t, "image/jpeg", ctype)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, payload)
}

func TestSubmitWithoutAttachmentOmitsFilePart(t *testing.T) {
	var hasFile bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, hasFile = r.MultipartForm.File["files[]"]
		_, _ = io.WriteString(w, `{"success": true}`)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, time.Second).Submit(context.Background(), pen(nil)))
	assert.False(t, hasFile)
}

func TestSubmitResponseClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Reason
	}{
		{"success", http.StatusOK, `{"success": true}`, ""},
		{"success despite status", http.StatusInternalServerError, `{"success": true}`, ""},
		{"explicit false", http.StatusOK, `{"success": false, "message": "duplicate"}`, ReasonServerRejected},
		{"missing flag", http.StatusOK, `{"message": "hi"}`, ReasonServerRejected},
		{"string flag", http.StatusOK, `{"success": "true"}`, ReasonServerRejected},
		{"numeric flag", http.StatusOK, `{"success": 1}`, ReasonServerRejected},
		{"html", http.StatusBadGateway, `<html>bad gateway</html>`, ReasonMalformedResponse},
		{"empty body", http.StatusOK, ``, ReasonMalformedResponse},
		{"array", http.StatusOK, `[{"success": true}]`, ReasonMalformedResponse},
		{"bare true", http.StatusOK, `true`, ReasonMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(replying(tt.status, tt.body))
			defer srv.Close()

			err := NewClient(srv.URL, time.Second).Submit(context.Background(), pen(nil))
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, ReasonOf(err))
		})
	}
}

func TestSubmitTransportErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(replying(http.StatusOK, `{"success": true}`))
		url := srv.URL
		srv.Close()

		err := NewClient(url, time.Second).Submit(context.Background(), pen(nil))
		assert.Equal(t, ReasonTransport, ReasonOf(err))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		err := NewClient(srv.URL, 50*time.Millisecond).Submit(context.Background(), pen(nil))
		assert.Equal(t, ReasonTransport, ReasonOf(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(replying(http.StatusOK, `{"success": true}`))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := NewClient(srv.URL, time.Second).Submit(ctx, pen(nil))
		assert.Equal(t, ReasonTransport, ReasonOf(err))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("bad url", func(t *testing.T) {
		err := NewClient("://nope", time.Second).Submit(context.Background(), pen(nil))
		assert.Equal(t, ReasonTransport, ReasonOf(err))
	})
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, Reason(""), ReasonOf(nil))
	assert.Equal(t, Reason(""), ReasonOf(errors.New("plain")))

	wrapped := errors.Join(errors.New("outer"), &Error{Reason: ReasonServerRejected})
	assert.Equal(t, ReasonServerRejected, ReasonOf(wrapped))

	e := &Error{Reason: ReasonTransport, Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, e, io.ErrUnexpectedEOF)
	assert.Contains(t, e.Error(), "transport")
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(DefaultEndpoint, 0)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
	assert.Equal(t, DefaultEndpoint, c.Endpoint())
}
