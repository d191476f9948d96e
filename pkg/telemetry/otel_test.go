package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestAttr(t *testing.T) {
	tests := []struct {
		value interface{}
		want  attribute.Type
	}{
		{"x", attribute.STRING},
		{3, attribute.INT64},
		{int64(3), attribute.INT64},
		{1.5, attribute.FLOAT64},
		{true, attribute.BOOL},
		{[]int{1}, attribute.STRING},
	}
	for _, tt := range tests {
		if got := Attr("k", tt.value).Value.Type(); got != tt.want {
			t.Errorf("Attr(%v) type = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestEndSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := tp.Tracer("test")

	_, ok := tracer.Start(context.Background(), "ok")
	EndSpan(ok, nil)
	_, bad := tracer.Start(context.Background(), "bad")
	EndSpan(bad, errors.New("boom"))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Unset {
		t.Errorf("ok status = %v", spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "boom" {
		t.Errorf("bad status = %v", spans[1].Status())
	}
}

func TestSampler(t *testing.T) {
	for _, r := range []float64{-1, 0, 0.25, 1, 2} {
		if Sampler(r) == nil {
			t.Errorf("Sampler(%v) = nil", r)
		}
	}
}
