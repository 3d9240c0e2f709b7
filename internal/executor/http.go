package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/teesched/internal/bookings"
)

const maxBody = 1 << 20

// HTTP posts the attempt as JSON to a booking service and reads back
// {"booked":bool,"retryable":bool,"detail":string}.
type HTTP struct {
	hc       *http.Client
	endpoint string
}

func NewHTTP(endpoint string, timeout time.Duration) *HTTP {
	return &HTTP{
		hc:       &http.Client{Timeout: timeout},
		endpoint: endpoint,
	}
}

type attemptRequest struct {
	BookingID int64    `json:"booking_id"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Club      string   `json:"club"`
	Times     []string `json:"times"`
	Date      string   `json:"date"`
	Players   []string `json:"players"`
}

type attemptResponse struct {
	Booked    bool   `json:"booked"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
	Message   string `json:"message"`
}

func (h *HTTP) Attempt(ctx context.Context, a Attempt) (Outcome, error) {
	body, err := json.Marshal(attemptRequest{
		BookingID: a.BookingID,
		Username:  a.Owner,
		Password:  a.Secret.Reveal(),
		Club:      a.Facility,
		Times:     a.Times,
		Date:      a.Date,
		Players:   a.Participants,
	})
	if err != nil {
		return Outcome{}, err
	}
	defer clear(body)

	status, resp, err := h.do(ctx, body)
	if err != nil {
		return Outcome{}, fmt.Errorf("executor: post attempt: %w", err)
	}

	// Error bodies may be plain text; only a 2xx body must decode.
	var r attemptResponse
	decodeErr := json.Unmarshal(resp, &r)
	detail := r.Detail
	if detail == "" {
		detail = r.Message
	}

	switch {
	case status >= 500:
		return Outcome{}, fmt.Errorf("executor: booking service failed (status=%d): %s", status, detail)
	case status >= 400:
		if detail == "" {
			detail = fmt.Sprintf("rejected (status=%d)", status)
		}
		return Outcome{Status: bookings.FailedPermanent, Detail: detail}, nil
	case status < 200 || status >= 300:
		return Outcome{}, fmt.Errorf("executor: unexpected status %d", status)
	case decodeErr != nil:
		return Outcome{}, fmt.Errorf("executor: decode response (status=%d): %w", status, decodeErr)
	case r.Booked:
		return Outcome{Status: bookings.Succeeded, Detail: detail}, nil
	case r.Retryable:
		return Outcome{Status: bookings.FailedRetryable, Detail: detail}, nil
	default:
		return Outcome{Status: bookings.FailedPermanent, Detail: detail}, nil
	}
}

func (h *HTTP) do(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	res, err := h.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}
