package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vastra-market/api/internal/platform/requestctx"
)

func TestWriteErrorIncludesTraceAndDetails(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("coupon_exhausted", "coupon usage limit reached\n", http.StatusUnprocessableEntity).
		WithDetails(map[string]any{"code": "SUMMER10", "status": 500}))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "coupon_exhausted" || body["message"] != "coupon usage limit reached" {
		t.Fatalf("unexpected body %#v", body)
	}
	if body["trace_id"] != "abc123" || body["code"] != "SUMMER10" {
		t.Fatalf("expected trace and details, got %#v", body)
	}
	if body["status"] != float64(http.StatusUnprocessableEntity) {
		t.Fatalf("details must not override reserved keys, got %#v", body["status"])
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Code string `json:"code"`
	}

	var dst payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A"}`))
	if err := DecodeJSON(req, &dst); err != nil || dst.Code != "A" {
		t.Fatalf("unexpected decode result %v %#v", err, dst)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	if err := DecodeJSON(req, &dst); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A","extra":1}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatalf("expected unknown field error")
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A"}{"code":"B"}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatalf("expected trailing data error")
	}
}
