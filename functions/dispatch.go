package functions

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/upb/functions-gateway/middleware"
	"github.com/upb/functions-gateway/utils"
	"go.uber.org/zap"
)

// Invocation outcomes reported to the InvocationRecorder
const (
	OutcomeOK           = "ok"
	OutcomeError        = "error"
	OutcomePanic        = "panic"
	OutcomeBadRequest   = "bad_request"
	OutcomeTooLarge     = "too_large"
	OutcomeTimeout      = "timeout"
	OutcomeUnauthorized = "unauthorized"
)

// InvocationRecorder observes completed invocations
type InvocationRecorder interface {
	RecordInvocation(route, outcome string, duration time.Duration)
}

// dispatcher serves one mounted entry. It only runs behind RequireAuth.
type dispatcher struct {
	entry    Entry
	logger   *zap.Logger
	maxBody  int64
	recorder InvocationRecorder
}

func (d *dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	claims := middleware.GetClaimsFromContext(ctx)
	if claims == nil {
		d.logger.Error("function reached without verified claims",
			zap.String("request_id", requestID),
			zap.String("route", d.entry.Route))
		d.record(OutcomeUnauthorized, start)
		_ = utils.WriteUnauthorized(w)
		return
	}

	if d.maxBody > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, d.maxBody)
	}

	id := uuid.NewString()
	sink := newResponseSink(w)
	inv := &Invocation{
		Request:  r,
		Response: sink,
		Claims:   claims,
		Route:    d.entry.Route,
		ID:       id,
		Logger: d.logger.With(
			zap.String("request_id", requestID),
			zap.String("route", d.entry.Route),
			zap.String("invocation_id", id)),
	}

	result, err := d.invoke(inv)
	if err != nil {
		d.fail(sink, inv, requestID, err, start)
		return
	}

	if err := writeResult(sink, result); err != nil {
		d.fail(sink, inv, requestID, err, start)
		return
	}

	d.record(OutcomeOK, start)
}

// invoke calls the handler exactly once and converts a panic into an error
func (d *dispatcher) invoke(inv *Invocation) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return d.entry.Handler.Invoke(inv)
}

// fail logs the handler failure and answers with a generic error unless the
// handler already started a response. A request whose deadline passed is left
// unanswered so the deadline middleware can reply 504.
func (d *dispatcher) fail(sink *ResponseSink, inv *Invocation, requestID string, err error, start time.Time) {
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("route", inv.Route),
		zap.String("invocation_id", inv.ID),
		zap.String("source", d.entry.Source),
		zap.Error(err),
	}

	var panicErr *PanicError
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(inv.Context().Err(), context.DeadlineExceeded):
		d.logger.Warn("function timed out", fields...)
		d.record(OutcomeTimeout, start)
		return
	case errors.Is(err, ErrBodyTooLarge):
		d.logger.Warn("function request body too large", fields...)
		d.record(OutcomeTooLarge, start)
		if !sink.Written() {
			_ = utils.WritePayloadTooLarge(sink.w)
		}
		return
	case errors.Is(err, ErrInvalidBody):
		d.logger.Warn("function request body invalid", fields...)
		d.record(OutcomeBadRequest, start)
		if !sink.Written() {
			_ = utils.WriteBadRequest(sink.w, "invalid JSON body")
		}
		return
	case errors.As(err, &panicErr):
		d.logger.Error("function panicked", append(fields, zap.ByteString("stack", panicErr.Stack))...)
		d.record(OutcomePanic, start)
	default:
		d.logger.Error("function failed", fields...)
		d.record(OutcomeError, start)
	}

	if !sink.Written() {
		_ = utils.WriteInternalServerError(sink.w)
	}
}

func (d *dispatcher) record(outcome string, start time.Time) {
	if d.recorder != nil {
		d.recorder.RecordInvocation(d.entry.Route, outcome, time.Since(start))
	}
}

// writeResult sends the handler's return value unless the handler already
// responded. Strings and byte slices are sent as-is, nil becomes 204 and
// anything else is encoded as JSON.
func writeResult(sink *ResponseSink, result any) error {
	if sink.Written() {
		return nil
	}

	switch v := result.(type) {
	case nil:
		sink.Status(sink.statusOr(http.StatusNoContent))
		sink.writeHeader()
		return nil
	case string:
		if sink.Header().Get("Content-Type") == "" {
			sink.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
		sink.Status(sink.statusOr(http.StatusOK))
		_, err := sink.Write([]byte(v))
		return err
	case []byte:
		if sink.Header().Get("Content-Type") == "" {
			sink.Header().Set("Content-Type", "application/octet-stream")
		}
		sink.Status(sink.statusOr(http.StatusOK))
		_, err := sink.Write(v)
		return err
	default:
		return sink.JSON(sink.statusOr(http.StatusOK), v)
	}
}
