// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestWithCorrelationID(t *testing.T) {
	tests := []struct {
		name          string
		ctx           context.Context
		correlationID string
		want          string
	}{
		{
			name:          "Add correlation ID to context",
			ctx:           context.Background(),
			correlationID: "test-correlation-id",
			want:          "test-correlation-id",
		},
		{
			name:          "Add correlation ID to nil context",
			ctx:           nil,
			correlationID: "test-correlation-id-2",
			want:          "test-correlation-id-2",
		},
		{
			name:          "Add empty correlation ID",
			ctx:           context.Background(),
			correlationID: "",
			want:          "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithCorrelationID(tt.ctx, tt.correlationID)
			if ctx == nil {
				t.Fatal("WithCorrelationID returned nil context")
			}
			got := GetCorrelationID(ctx)
			if got != tt.want {
				t.Errorf("GetCorrelationID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCorrelationIDNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is tolerated
	if got := GetCorrelationID(nil); got != "" {
		t.Errorf("GetCorrelationID(nil) = %q, want empty", got)
	}
}

func TestNewID(t *testing.T) {
	id := NewID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("NewID() returned invalid UUID %q: %v", id, err)
	}
	if id == NewID() {
		t.Error("NewID() returned duplicate IDs")
	}
}

func TestEnsure(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "existing")
	got, id := Ensure(ctx)
	if id != "existing" {
		t.Errorf("Ensure() id = %q, want existing", id)
	}
	if got != ctx {
		t.Error("Ensure() should return the original context when an ID exists")
	}

	got, id = Ensure(context.Background())
	if id == "" {
		t.Fatal("Ensure() generated an empty ID")
	}
	if GetCorrelationID(got) != id {
		t.Errorf("Ensure() context carries %q, want %q", GetCorrelationID(got), id)
	}
}

func TestUnaryClientInterceptor(t *testing.T) {
	var sent []string
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		sent = md.Get(MetadataKey)
		return nil
	}

	ctx := WithCorrelationID(context.Background(), "op-1")
	if err := UnaryClientInterceptor()(ctx, "/svc/M", nil, nil, nil, invoker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 1 || sent[0] != "op-1" {
		t.Errorf("outgoing metadata = %v, want [op-1]", sent)
	}

	if err := UnaryClientInterceptor()(context.Background(), "/svc/M", nil, nil, nil, invoker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 1 || sent[0] == "" {
		t.Errorf("expected a generated ID, got %v", sent)
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	var seen string
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		seen = GetCorrelationID(ctx)
		return nil, nil
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, "from-client"))
	if _, err := UnaryServerInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "from-client" {
		t.Errorf("handler saw %q, want from-client", seen)
	}

	if _, err := UnaryServerInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{}, handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == "" {
		t.Error("expected a generated ID when metadata carries none")
	}
}

func TestFromIncomingWithoutMetadata(t *testing.T) {
	if got := FromIncoming(context.Background()); got != "" {
		t.Errorf("FromIncoming() = %q, want empty", got)
	}
}
