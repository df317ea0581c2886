package detectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/warden/internal/engine"
)

const (
	// DefaultClassifierMethod is the unary method invoked on the classifier.
	// Request and response are google.protobuf.Struct messages:
	// {"text": string} -> {"label": string, "confidence": number, "model_name": string}.
	DefaultClassifierMethod = "/warden.classifier.v1.Classifier/Classify"

	DefaultClassifierTimeout   = 40 * time.Millisecond
	DefaultClassifierThreshold = 0.5
)

// RemoteConfig configures the remote classifier module.
type RemoteConfig struct {
	Endpoint  string
	Method    string
	Timeout   time.Duration
	Threshold float64
}

// RemoteClassifier calls an external ML classifier over gRPC. Errors are
// logged and reported as no findings so a classifier outage never fails a
// validation.
type RemoteClassifier struct {
	conn      *grpc.ClientConn
	method    string
	timeout   time.Duration
	threshold float64
	logger    *zap.Logger
}

// NewRemoteClassifier dials endpoint lazily; the first Scan establishes the
// connection.
func NewRemoteClassifier(cfg RemoteConfig, logger *zap.Logger) (*RemoteClassifier, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("NewRemoteClassifier: endpoint is required")
	}
	conn, err := grpc.NewClient(
		cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("NewRemoteClassifier: %w", err)
	}

	c := &RemoteClassifier{
		conn:      conn,
		method:    cfg.Method,
		timeout:   cfg.Timeout,
		threshold: cfg.Threshold,
		logger:    logger,
	}
	if c.method == "" {
		c.method = DefaultClassifierMethod
	}
	if c.timeout <= 0 {
		c.timeout = DefaultClassifierTimeout
	}
	if c.threshold <= 0 {
		c.threshold = DefaultClassifierThreshold
	}

	logger.Info("remote classifier configured",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("method", c.method),
	)
	return c, nil
}

func (c *RemoteClassifier) Name() string {
	return ModuleRemoteClassifier
}

func (c *RemoteClassifier) Scan(ctx context.Context, text string) ([]engine.Finding, error) {
	if text == "" {
		return nil, nil
	}
	req, err := structpb.NewStruct(map[string]any{"text": text})
	if err != nil {
		c.logger.Warn("remote classifier request encoding failed, skipping", zap.Error(err))
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, c.method, req, resp); err != nil {
		c.logger.Warn("remote classifier gRPC error, skipping", zap.Error(err))
		return nil, nil
	}

	fields := resp.GetFields()
	label := fields["label"].GetStringValue()
	confidence := fields["confidence"].GetNumberValue()
	model := fields["model_name"].GetStringValue()

	if !isMaliciousLabel(label) || confidence < c.threshold {
		return nil, nil
	}

	sev := engine.SeverityMedium
	if confidence >= 0.9 {
		sev = engine.SeverityHigh
	}
	return []engine.Finding{{
		PatternID:   "ml_" + strings.ToLower(label),
		Category:    "prompt_injection",
		Severity:    sev,
		MatchedText: text,
		Metadata: map[string]any{
			"label":      label,
			"confidence": confidence,
			"model":      model,
		},
	}}, nil
}

func isMaliciousLabel(label string) bool {
	return strings.EqualFold(label, "INJECTION") || strings.EqualFold(label, "JAILBREAK")
}

// Close shuts down the gRPC connection.
func (c *RemoteClassifier) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
