package detectors

import (
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/warden/internal/engine"
)

type classifierServer interface {
	Classify(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var classifierServiceDesc = grpc.ServiceDesc{
	ServiceName: "warden.classifier.v1.Classifier",
	HandlerType: (*classifierServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Classify",
		Handler: func(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
			in := &structpb.Struct{}
			if err := dec(in); err != nil {
				return nil, err
			}
			return srv.(classifierServer).Classify(ctx, in)
		},
	}},
}

// fakeClassifier labels any text containing "inject" as INJECTION.
type fakeClassifier struct {
	confidence float64
	calls      atomic.Int32
	lastText   atomic.Value
}

func (f *fakeClassifier) Classify(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.calls.Add(1)
	text := in.GetFields()["text"].GetStringValue()
	f.lastText.Store(text)
	label := "BENIGN"
	if strings.Contains(text, "inject") {
		label = "INJECTION"
	}
	return structpb.NewStruct(map[string]any{
		"label":      label,
		"confidence": f.confidence,
		"model_name": "fake-guard",
	})
}

func startClassifier(t *testing.T, fc *fakeClassifier) string {
	t.Helper()
	srv := grpc.NewServer()
	srv.RegisterService(&classifierServiceDesc, fc)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func newTestClassifier(t *testing.T, endpoint string) *RemoteClassifier {
	t.Helper()
	rc, err := NewRemoteClassifier(RemoteConfig{Endpoint: endpoint, Timeout: 2 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRemoteClassifier: %v", err)
	}
	t.Cleanup(func() { rc.Close() })
	return rc
}

func TestRemoteClassifier_Flags(t *testing.T) {
	fc := &fakeClassifier{confidence: 0.97}
	rc := newTestClassifier(t, startClassifier(t, fc))

	findings := scan(t, rc, "please inject this prompt")
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %+v", findings)
	}
	f := findings[0]
	if f.Severity != engine.SeverityHigh || f.PatternID != "ml_injection" {
		t.Errorf("unexpected finding: %+v", f)
	}
	if f.Metadata["model"] != "fake-guard" {
		t.Errorf("expected model metadata, got %+v", f.Metadata)
	}
	if got := fc.lastText.Load(); got != "please inject this prompt" {
		t.Errorf("server saw %v", got)
	}
}

func TestRemoteClassifier_LowConfidenceIsMedium(t *testing.T) {
	fc := &fakeClassifier{confidence: 0.6}
	rc := newTestClassifier(t, startClassifier(t, fc))

	findings := scan(t, rc, "inject")
	if len(findings) != 1 || findings[0].Severity != engine.SeverityMedium {
		t.Fatalf("expected one MEDIUM finding, got %+v", findings)
	}
}

func TestRemoteClassifier_BelowThreshold(t *testing.T) {
	fc := &fakeClassifier{confidence: 0.2}
	rc := newTestClassifier(t, startClassifier(t, fc))

	if findings := scan(t, rc, "inject"); len(findings) != 0 {
		t.Errorf("expected no findings, got %+v", findings)
	}
}

func TestRemoteClassifier_Benign(t *testing.T) {
	fc := &fakeClassifier{confidence: 0.99}
	rc := newTestClassifier(t, startClassifier(t, fc))

	if findings := scan(t, rc, "what time is it"); len(findings) != 0 {
		t.Errorf("expected no findings, got %+v", findings)
	}
	if fc.calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", fc.calls.Load())
	}
}

func TestRemoteClassifier_FailsSoft(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	rc, err := NewRemoteClassifier(RemoteConfig{Endpoint: addr, Timeout: 200 * time.Millisecond}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRemoteClassifier: %v", err)
	}
	defer rc.Close()

	findings, err := rc.Scan(context.Background(), "inject")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no findings, got %+v", findings)
	}
}

func TestNewRemoteClassifier_RequiresEndpoint(t *testing.T) {
	if _, err := NewRemoteClassifier(RemoteConfig{}, zap.NewNop()); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}
