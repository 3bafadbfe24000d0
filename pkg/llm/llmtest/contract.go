package llmtest

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/flowforge-ai/flowforge/pkg/llm"
)

// TestStreamProviderContract runs a suite of behavioral contract tests
// against any llm.StreamProvider implementation. The factory must return
// a provider whose backend will stream at least one delta for a trivial
// request (real adapters can point at a stubbed HTTP server). Call this
// from each adapter's _test.go:
//
//	func TestContract(t *testing.T) {
//	    llmtest.TestStreamProviderContract(t, func() llm.StreamProvider { return openai.New(cfg, key, logger) })
//	}
func TestStreamProviderContract(t *testing.T, factory func() llm.StreamProvider) {
	t.Helper()

	req := llm.ConverseRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	}

	t.Run("Converse_streams_deltas_until_EOF", func(t *testing.T) {
		p := factory()
		stream, err := p.Converse(context.Background(), req)
		if err != nil {
			t.Fatalf("Converse() error = %v", err)
		}
		defer stream.Close()

		var got int
		for {
			d, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("Recv() error = %v", err)
			}
			if d == nil {
				t.Fatal("Recv() returned nil delta with nil error")
			}
			got++
		}
		if got == 0 {
			t.Error("stream produced no deltas")
		}
	})

	t.Run("Recv_after_EOF_keeps_returning_EOF", func(t *testing.T) {
		p := factory()
		stream, err := p.Converse(context.Background(), req)
		if err != nil {
			t.Fatalf("Converse() error = %v", err)
		}
		defer stream.Close()

		for {
			if _, err := stream.Recv(); err != nil {
				break
			}
		}
		if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
			t.Errorf("Recv() after end = %v, want io.EOF", err)
		}
	})

	t.Run("Close_is_idempotent", func(t *testing.T) {
		p := factory()
		stream, err := p.Converse(context.Background(), req)
		if err != nil {
			t.Fatalf("Converse() error = %v", err)
		}
		if err := stream.Close(); err != nil {
			t.Errorf("first Close() error = %v", err)
		}
		if err := stream.Close(); err != nil {
			t.Errorf("second Close() error = %v", err)
		}
	})

	t.Run("Converse_empty_messages_returns_error", func(t *testing.T) {
		p := factory()
		_, err := p.Converse(context.Background(), llm.ConverseRequest{})
		if err == nil {
			t.Error("Converse() with no messages should return error")
		}
	})

	t.Run("Converse_cancelled_context_returns_error", func(t *testing.T) {
		p := factory()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := p.Converse(ctx, req); err == nil {
			t.Error("Converse() with cancelled context should return error")
		}
	})
}
