package detectors

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/viper"
	regexp "github.com/wasilibs/go-re2"
	"github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/triage-ai/warden/internal/engine"
)

const secretCategory = "secret_exposure"

var secretPatterns = []pattern{
	{"secret_001", "anthropic_api_key", engine.SeverityCritical, regexp.MustCompile(`sk-ant-api03-[a-zA-Z0-9\-_]{95}`), "Anthropic API key", tierCore},
	{"secret_002", "openai_api_key", engine.SeverityCritical, regexp.MustCompile(`sk-[a-zA-Z0-9]{48}`), "OpenAI API key", tierCore},
	{"secret_003", "github_token", engine.SeverityCritical, regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36,}`), "GitHub token", tierCore},
	{"secret_005", "aws_access_key", engine.SeverityCritical, regexp.MustCompile(`(A3T[A-Z0-9]|AKIA|AGPA|AIDA|AROA|AIPA|ANPA|ANVA|ASIA)[A-Z0-9]{16}`), "AWS access key ID", tierCore},
	{"secret_006", "aws_secret_key", engine.SeverityCritical, regexp.MustCompile(`(?i)aws_secret_access_key\s*[=:]\s*[a-zA-Z0-9/+=]{40}`), "AWS secret access key", tierCore},
	{"secret_008", "google_api_key", engine.SeverityCritical, regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`), "Google API key", tierCore},
	{"secret_009", "google_oauth", engine.SeverityCritical, regexp.MustCompile(`ya29\.[0-9A-Za-z\-_]{20,}`), "Google OAuth access token", tierCore},
	{"secret_010", "slack_token", engine.SeverityCritical, regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}-[a-zA-Z0-9]{24,32}`), "Slack token", tierCore},
	{"secret_011", "slack_webhook", engine.SeverityHigh, regexp.MustCompile(`https://hooks\.slack\.com/services/T[a-zA-Z0-9_]+/B[a-zA-Z0-9_]+/[a-zA-Z0-9_]+`), "Slack incoming webhook", tierCore},
	{"secret_012", "stripe_api_key", engine.SeverityCritical, regexp.MustCompile(`(sk|pk|rk)_(live|test)_[0-9a-zA-Z]{24,}`), "Stripe API key", tierCore},
	{"secret_013", "twilio_api_key", engine.SeverityCritical, regexp.MustCompile(`\bSK[a-f0-9]{32}\b`), "Twilio API key", tierCore},
	{"secret_014", "mailgun_api_key", engine.SeverityHigh, regexp.MustCompile(`\bkey-[0-9a-zA-Z]{32}\b`), "Mailgun API key", tierCore},
	{"secret_015", "sendgrid_api_key", engine.SeverityCritical, regexp.MustCompile(`SG\.[a-zA-Z0-9_\-]{22}\.[a-zA-Z0-9_\-]{43}`), "SendGrid API key", tierCore},
	{"secret_016", "jwt_token", engine.SeverityHigh, regexp.MustCompile(`eyJ[a-zA-Z0-9_\-]{8,}\.eyJ[a-zA-Z0-9_\-]{8,}\.[a-zA-Z0-9_\-]{8,}`), "JSON web token", tierCore},
	{"secret_017", "private_key", engine.SeverityCritical, regexp.MustCompile(`-----BEGIN ((RSA|DSA|EC|OPENSSH|PGP|ENCRYPTED) )?PRIVATE KEY( BLOCK)?-----`), "private key block", tierCore},
	{"secret_018", "generic_api_key", engine.SeverityHigh, regexp.MustCompile(`(?i)(api[_-]?key|apikey|access[_-]?token|auth[_-]?token|secret[_-]?key)\s*[=:]\s*['"][a-zA-Z0-9_\-]{20,}['"]`), "quoted API key assignment", tierCore},
	{"secret_019", "generic_password", engine.SeverityMedium, regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"][^'"\s]{8,}['"]`), "quoted password assignment", tierCore},
	{"secret_021", "discord_token", engine.SeverityHigh, regexp.MustCompile(`\b[MN][a-zA-Z0-9_\-]{23}\.[a-zA-Z0-9_\-]{6}\.[a-zA-Z0-9_\-]{27}\b`), "Discord bot token", tierCore},
	{"secret_022", "pypi_token", engine.SeverityHigh, regexp.MustCompile(`pypi-AgEIcHlwaS5vcmc[a-zA-Z0-9_\-]{50,}`), "PyPI upload token", tierCore},
	{"secret_023", "npm_token", engine.SeverityHigh, regexp.MustCompile(`\bnpm_[a-zA-Z0-9]{36}\b`), "npm access token", tierCore},
	{"secret_024", "gitlab_token", engine.SeverityCritical, regexp.MustCompile(`glpat-[a-zA-Z0-9_\-]{20}`), "GitLab personal access token", tierCore},
	{"secret_025", "supabase_key", engine.SeverityCritical, regexp.MustCompile(`sbp_[a-f0-9]{40}`), "Supabase service key", tierCore},
	{"secret_028", "azure_connection_string", engine.SeverityCritical, regexp.MustCompile(`(?i)AccountKey\s*=\s*[a-zA-Z0-9/+]{40,}={0,2}`), "Azure storage connection string", tierCore},
	{"secret_029", "databricks_token", engine.SeverityHigh, regexp.MustCompile(`\bdapi[a-f0-9]{32}\b`), "Databricks token", tierCore},
	{"secret_030", "huggingface_token", engine.SeverityHigh, regexp.MustCompile(`\bhf_[a-zA-Z0-9]{34,}\b`), "Hugging Face token", tierCore},
	{"secret_031", "replicate_token", engine.SeverityHigh, regexp.MustCompile(`\br8_[a-zA-Z0-9]{36,}\b`), "Replicate token", tierCore},
	{"secret_032", "planetscale_token", engine.SeverityHigh, regexp.MustCompile(`pscale_tkn_[a-zA-Z0-9_\-]{32,}`), "PlanetScale token", tierCore},
	{"secret_033", "linear_api_key", engine.SeverityHigh, regexp.MustCompile(`lin_api_[a-zA-Z0-9]{32,}`), "Linear API key", tierCore},
	{"secret_034", "grafana_cloud_token", engine.SeverityHigh, regexp.MustCompile(`\bglc_[a-zA-Z0-9_\-]{32,}`), "Grafana Cloud token", tierCore},
	{"secret_035", "hashicorp_vault_token", engine.SeverityCritical, regexp.MustCompile(`\bhvs\.[a-zA-Z0-9_\-]{24,}`), "HashiCorp Vault token", tierCore},
	{"secret_036", "doppler_token", engine.SeverityHigh, regexp.MustCompile(`dp\.st\.[a-zA-Z0-9_\-]{40,}`), "Doppler service token", tierCore},
	{"secret_040", "generic_secret_assignment", engine.SeverityLow, regexp.MustCompile(`(?i)\b(secret|token|api_?key|password)\s*[=:]\s*\S{12,}`), "unquoted secret assignment", tierStrict},
}

var (
	gitleaksOnce   sync.Once
	gitleaksConfig config.Config
	gitleaksErr    error
)

// loadGitleaks translates the embedded gitleaks default rule set. Rule
// compilation is expensive, so it happens once per process.
func loadGitleaks() (config.Config, error) {
	gitleaksOnce.Do(func() {
		v := viper.New()
		v.SetConfigType("toml")
		if err := v.ReadConfig(bytes.NewBufferString(config.DefaultConfig)); err != nil {
			gitleaksErr = fmt.Errorf("loadGitleaks: read embedded config: %w", err)
			return
		}
		var vc config.ViperConfig
		if err := v.Unmarshal(&vc); err != nil {
			gitleaksErr = fmt.Errorf("loadGitleaks: unmarshal embedded config: %w", err)
			return
		}
		gitleaksConfig, gitleaksErr = vc.Translate()
		if gitleaksErr != nil {
			gitleaksErr = fmt.Errorf("loadGitleaks: translate config: %w", gitleaksErr)
		}
	})
	return gitleaksConfig, gitleaksErr
}

// gitleaksPool hands out gitleaks detectors, one per concurrent scan, since
// a detector is not safe for concurrent use. Slots are filled on first use.
type gitleaksPool struct {
	cfg   config.Config
	slots chan *detect.Detector
}

func newGitleaksPool(cfg config.Config, size int) *gitleaksPool {
	if size < 1 {
		size = 1
	}
	p := &gitleaksPool{cfg: cfg, slots: make(chan *detect.Detector, size)}
	for i := 0; i < size; i++ {
		p.slots <- nil
	}
	return p
}

// acquire waits for a free detector or for ctx to end.
func (p *gitleaksPool) acquire(ctx context.Context) (*detect.Detector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case gl := <-p.slots:
		if gl == nil {
			gl = detect.NewDetector(p.cfg)
		}
		return gl, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *gitleaksPool) release(gl *detect.Detector) {
	p.slots <- gl
}

// SecretDetector flags credentials and keys. Its own table covers the
// common providers; the gitleaks rule set, when enabled, covers the long
// tail.
type SecretDetector struct {
	sensitivity engine.Sensitivity
	gitleaks    *gitleaksPool
}

// NewSecretDetector returns the secret module. withGitleaks loads the
// gitleaks default rule set in addition to the built-in patterns.
func NewSecretDetector(sens engine.Sensitivity, withGitleaks bool) (*SecretDetector, error) {
	d := &SecretDetector{sensitivity: sens}
	if withGitleaks {
		cfg, err := loadGitleaks()
		if err != nil {
			return nil, err
		}
		d.gitleaks = newGitleaksPool(cfg, runtime.GOMAXPROCS(0))
	}
	return d, nil
}

func (d *SecretDetector) Name() string {
	return ModuleSecretDetector
}

func (d *SecretDetector) Scan(ctx context.Context, text string) ([]engine.Finding, error) {
	if text == "" {
		return nil, nil
	}
	findings := scanPatterns(ctx, secretCategory, secretPatterns, text, d.sensitivity)
	matched := make([]string, len(findings))
	for i := range findings {
		matched[i] = findings[i].MatchedText
	}

	if d.gitleaks != nil {
		gl, err := d.gitleaks.acquire(ctx)
		if err != nil {
			return nil, err
		}
		leaks := gl.DetectString(text)
		d.gitleaks.release(gl)

		for _, l := range leaks {
			if l.Secret == "" || coveredBy(matched, l.Secret) {
				continue
			}
			sev, t := gitleaksSeverity(l.RuleID)
			if !t.enabled(d.sensitivity) {
				continue
			}
			sev, ok := d.sensitivity.Adjust(sev)
			if !ok {
				continue
			}
			matched = append(matched, l.Secret)
			findings = append(findings, engine.Finding{
				PatternID:   "gitleaks:" + l.RuleID,
				Category:    secretCategory,
				Severity:    sev,
				MatchedText: l.Secret,
				Metadata: map[string]any{
					"subcategory": l.RuleID,
					"description": l.Description,
					"source":      "gitleaks",
				},
			})
		}
	}

	for i := range findings {
		findings[i].Metadata["length"] = len(findings[i].MatchedText)
		findings[i].MatchedText = maskSecret(findings[i].MatchedText)
	}
	return findings, nil
}

func coveredBy(matched []string, secret string) bool {
	for _, m := range matched {
		if strings.Contains(m, secret) || strings.Contains(secret, m) {
			return true
		}
	}
	return false
}

// gitleaksSeverity maps a gitleaks rule to a severity and the lowest
// sensitivity it is reported at. Generic rules are noisy on prose.
func gitleaksSeverity(ruleID string) (engine.Severity, tier) {
	switch {
	case strings.Contains(ruleID, "private-key"):
		return engine.SeverityCritical, tierCore
	case strings.HasPrefix(ruleID, "generic"):
		return engine.SeverityMedium, tierStrict
	default:
		return engine.SeverityHigh, tierCore
	}
}

// maskSecret keeps a short prefix so operators can tell which credential
// leaked without the excerpt being usable.
func maskSecret(s string) string {
	r := []rune(s)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	keep := 4
	if len(r) >= 24 {
		keep = 8
	}
	return string(r[:keep]) + strings.Repeat("*", len(r)-keep)
}
