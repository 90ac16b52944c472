package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/submitq/internal/queue"
	"github.com/cybertec-postgresql/submitq/internal/sync"
)

const (
	maxUploadSize  = 10 << 20
	attachmentPart = "files[]"
)

type handlers struct {
	coord  Coordinator
	conn   Connectivity
	logger *logrus.Entry
}

type submitResponse struct {
	Outcome  sync.Outcome `json:"outcome"`
	Message  string       `json:"message"`
	RecordID string       `json:"id,omitempty"`
}

type connectivityResponse struct {
	Reachable bool   `json:"reachable"`
	Sequence  uint64 `json:"sequence"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var outcomeStatus = map[sync.Outcome]int{
	sync.OutcomeSubmitted:       http.StatusOK,
	sync.OutcomeSavedOffline:    http.StatusAccepted,
	sync.OutcomeValidationError: http.StatusUnprocessableEntity,
}

func (h *handlers) submitProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	fields, attachment, err := readForm(r)
	if err != nil {
		h.logger.WithError(err).Debug("Rejecting malformed product form")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res := h.coord.Submit(r.Context(), fields, attachment)
	resp := submitResponse{Outcome: res.Outcome, Message: res.Message}
	if res.Outcome != sync.OutcomeValidationError {
		resp.RecordID = res.RecordID.String()
	}
	writeJSON(w, outcomeStatus[res.Outcome], resp)
}

// readForm accepts multipart or url-encoded bodies with the same field
// names the remote endpoint uses
func readForm(r *http.Request) (queue.Fields, []byte, error) {
	err := r.ParseMultipartForm(maxUploadSize)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse form: %w", err)
	}

	fields := make(queue.Fields, len(queue.FieldNames))
	for _, name := range queue.FieldNames {
		fields[name] = r.PostFormValue(name)
	}

	if r.MultipartForm == nil {
		return fields, nil, nil
	}
	file, _, err := r.FormFile(attachmentPart)
	if errors.Is(err, http.ErrMissingFile) {
		return fields, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	defer file.Close()

	attachment, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	return fields, attachment, nil
}

func (h *handlers) productTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sync.ProductTypes)
}

func (h *handlers) connectivity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, connectivityResponse{
		Reachable: h.conn.Current(),
		Sequence:  h.conn.Sequence(),
	})
}

func (h *handlers) requestSync(w http.ResponseWriter, _ *http.Request) {
	h.coord.RequestDrain()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (h *handlers) live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to write response")
	}
}
