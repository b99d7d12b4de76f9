package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/taskcrew/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxIdempotencyBody   = 1 << 20
)

type idempotentReply struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Idempotency replays the stored reply when a POST or PUT arrives again with
// the same Idempotency-Key on the same path. Only replies below 500 are
// stored, so a request that hit an outage can be retried for real.
func Idempotency(c cache.Cache, ttl time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idem := r.Header.Get(headerIdempotencyKey)
			if idem == "" || (r.Method != http.MethodPost && r.Method != http.MethodPut) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := cache.IdempotencyKey(r.Method, r.URL.Path, idem)

			if raw, found, err := c.Get(ctx, key); err == nil && found {
				var prev idempotentReply
				if err := json.Unmarshal(raw, &prev); err == nil {
					if prev.ContentType != "" {
						w.Header().Set("Content-Type", prev.ContentType)
					}
					w.Header().Set("Idempotent-Replayed", "true")
					w.WriteHeader(prev.Status)
					_, _ = w.Write(prev.Body)
					return
				}
				log.WarnContext(ctx, "corrupt idempotency entry", "key", idem)
			}

			rec := &capture{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			if rec.status >= http.StatusInternalServerError || rec.overflow {
				return
			}
			data, err := json.Marshal(idempotentReply{
				Status:      rec.status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := c.Set(ctx, key, data, ttl); err != nil {
				log.WarnContext(ctx, "store idempotent reply", "key", idem, "error", err)
			}
		})
	}
}

// capture tees the response body, up to maxIdempotencyBody.
type capture struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	overflow bool
}

func (c *capture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *capture) Write(b []byte) (int, error) {
	if c.body.Len()+len(b) > maxIdempotencyBody {
		c.overflow = true
	} else {
		c.body.Write(b)
	}
	return c.ResponseWriter.Write(b)
}
