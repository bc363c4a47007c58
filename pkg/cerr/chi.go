package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldops/fieldops/pkg/clog"
)

// jsonResult is filled in by an /api handler and rendered by the
// middleware once the handler returns.
type jsonResult struct {
	body any
	err  error
}

type jsonResultKey struct{}

func resultFromContext(ctx context.Context) *jsonResult {
	res, _ := ctx.Value(jsonResultKey{}).(*jsonResult)
	return res
}

// SetJSONResponse sets the 200 response body of the current request.
func SetJSONResponse(ctx context.Context, body any) {
	if res := resultFromContext(ctx); res != nil {
		res.body = body
	}
}

// SetJSONError makes the current request fail with err. Only the code, the
// public message and the rule ids of an *Error reach the caller.
func SetJSONError(ctx context.Context, err error) {
	if res := resultFromContext(ctx); res != nil {
		res.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

// NewJSONErrorMiddleware renders what the handler set through SetJSONResponse
// or SetJSONError. Handlers under it never write the body themselves.
func NewJSONErrorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			res := &jsonResult{}
			ctx := context.WithValue(r.Context(), jsonResultKey{}, res)
			next.ServeHTTP(rw, r.WithContext(ctx))
			if res.err != nil {
				writeJSONError(ctx, rw, normalize(ctx, res.err))
				return
			}
			writeJSON(ctx, rw, res.body)
		})
	}
}

// httpError is the error body of the /api routes. Details lists rule ids
// such as MaxRoundsExceeded.
type httpError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func encodeJSON(v any) (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	return buf, enc.Encode(v)
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, body any) {
	buf, err := encodeJSON(body)
	if err != nil {
		writeJSONError(ctx, rw, NewError(Internal, "server error", err))
		return
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}

func writeJSONError(ctx context.Context, rw http.ResponseWriter, e *Error) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(e.Code.HTTPCode())
	buf, err := encodeJSON(httpError{Code: e.Code.String(), Message: e.Msg, Details: detailRuleIDs(e)})
	if err != nil {
		buf = bytes.NewBufferString(`{"code":"Internal","message":"server error"}`)
		e.Err = errors.Join(e.Err, err)
		clog.AddError(ctx, e)
	}
	if _, err := rw.Write(buf.Bytes()); err != nil {
		e.Err = errors.Join(e.Err, err)
		clog.AddError(ctx, e)
	}
}
