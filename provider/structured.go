package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/researcher/models"
)

var (
	// ErrSchemaViolation means the model replied but the reply did not fit the schema.
	ErrSchemaViolation = errors.New("structured output does not match schema")
	// ErrNoContent means the model returned an empty reply.
	ErrNoContent = errors.New("model returned no content")
)

const systemPrompt = `You are a careful research assistant inside an automated pipeline.
Reply with exactly one JSON object that conforms to this JSON Schema and nothing else:
%s`

// Structured turns a free-text Completer into a Transformer by validating
// every reply against a schema. Schema violations, empty replies and
// retryable vendor errors are retried; timeouts are not.
type Structured struct {
	completer  Completer
	maxRetries int
	backoff    time.Duration
	log        *logrus.Entry
}

func NewStructured(c Completer, maxRetries int, logger *logrus.Logger) *Structured {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Structured{
		completer:  c,
		maxRetries: maxRetries,
		backoff:    500 * time.Millisecond,
		log:        logger.WithField("provider", c.Name()),
	}
}

func (s *Structured) Invoke(ctx context.Context, prompt string, schema *Schema, out any) error {
	req := models.Prompt{User: prompt}
	if schema != nil {
		req.System = fmt.Sprintf(systemPrompt, schema.String())
		req.SchemaName = schema.Name
		req.Schema = schema.Document()
	}

	var lastErr error
	tries := s.maxRetries + 1
	for attempt := 0; attempt < tries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := s.completer.Complete(ctx, req)
		if err == nil {
			err = decode(text, schema, out)
			if err == nil {
				return nil
			}
			// tell the model what went wrong on the next attempt
			req.User = prompt + "\n\nYour previous reply was rejected: " + err.Error() + "\nReply again with a single JSON object that matches the schema."
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
		s.log.WithError(err).WithField("attempt", attempt+1).Warn("structured call failed")

		if attempt < tries-1 {
			select {
			case <-time.After(s.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// Invoke is the typed form of Transformer.Invoke.
func Invoke[T any](ctx context.Context, t Transformer, prompt string, schema *Schema) (T, error) {
	var out T
	err := t.Invoke(ctx, prompt, schema, &out)
	return out, err
}

func decode(text string, schema *Schema, out any) error {
	if strings.TrimSpace(text) == "" {
		return ErrNoContent
	}
	doc := extractJSON(text)
	if doc == "" {
		return fmt.Errorf("%w: no JSON object in reply", ErrSchemaViolation)
	}
	if schema != nil {
		if err := schema.Validate([]byte(doc)); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// extractJSON returns the first balanced top-level JSON object in s,
// skipping braces inside string literals. Markdown fences are tolerated.
func extractJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	if errors.Is(err, ErrSchemaViolation) || errors.Is(err, ErrNoContent) {
		return true
	}
	var apiErr *models.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
