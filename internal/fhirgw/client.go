package fhirgw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/eligibility/internal/engineerr"
)

// Gateway is a typed client over a FHIR R4 server's search endpoints.
// It owns the per-request timeout, bounded retry with backoff,
// and request authentication; Leaf Evaluators never touch net/http
// directly.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	authMode   AuthMode
	clientID   string
	signingKey []byte
	bearerTok  string
	maxRetries int
	logger     zerolog.Logger
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithBearerToken sets a static bearer token, used when AuthMode is
// AuthBearer.
func WithBearerToken(token string) Option {
	return func(g *Gateway) { g.bearerTok = token }
}

// WithSignedAuth configures signed client-assertion auth (AuthMode
// AuthSigned): every request carries a freshly signed JWT bearer token.
func WithSignedAuth(clientID string, signingKey []byte) Option {
	return func(g *Gateway) {
		g.clientID = clientID
		g.signingKey = signingKey
	}
}

// WithLogger attaches a logger; defaults to a disabled logger otherwise.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// New constructs a Gateway against baseURL with the given auth mode,
// request timeout, and retry budget.
func New(baseURL string, authMode AuthMode, timeout time.Duration, maxRetries int, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:  baseURL,
		authMode: authMode,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// get issues a single authenticated GET, retrying transient failures with
// exponential backoff.
func (g *Gateway) get(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	attempts := g.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 250 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("fhirgw: building request: %w", err)
		}
		req.Header.Set("Accept", "application/fhir+json")
		if err := g.authenticate(req); err != nil {
			return nil, err
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			kind := engineerr.QueryFailureNetwork
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				kind = engineerr.QueryFailureTimeout
			}
			lastErr = engineerr.Wrap(engineerr.KindQueryFailed, string(kind), err)
			g.logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", rawURL).Msg("fhir request failed, retrying")
			continue
		}

		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = engineerr.New(engineerr.KindQueryFailed,
				fmt.Sprintf("%s: HTTP %d: %s", engineerr.QueryFailureHTTP5xx, resp.StatusCode, truncate(body, 200)))
			g.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Str("url", rawURL).Msg("fhir server error, retrying")
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, engineerr.New(engineerr.KindQueryFailed,
				fmt.Sprintf("%s: HTTP %d: %s", engineerr.QueryFailureHTTP4xx, resp.StatusCode, truncate(body, 200)))
		}

		return resp, nil
	}
	return nil, lastErr
}

func (g *Gateway) authenticate(req *http.Request) error {
	switch g.authMode {
	case AuthNone, "":
		return nil
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+g.bearerTok)
		return nil
	case AuthSigned:
		assertion, err := signClientAssertion(g.signingKey, g.clientID, g.baseURL)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+assertion)
		return nil
	default:
		return fmt.Errorf("fhirgw: unknown auth mode %q", g.authMode)
	}
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// buildSearchURL composes the initial search URL for a resource type,
// scoping by patient reference and any caller-supplied params.
func (g *Gateway) buildSearchURL(resourceType, patientID string, params map[string]string) (string, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return "", fmt.Errorf("fhirgw: invalid base URL: %w", err)
	}
	u.Path = joinPath(u.Path, resourceType)

	q := u.Query()
	if patientID != "" {
		ref := "Patient/" + patientID
		if FHIRResourceKind(resourceType) == KindPatient {
			// _id takes the bare logical id, not a reference.
			ref = patientID
		}
		q.Set(patientSearchParam(resourceType), ref)
	}
	for k, v := range params {
		q.Set(k, v)
	}
	if q.Get("_count") == "" {
		q.Set("_count", strconv.Itoa(defaultPageSize))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

const defaultPageSize = 100

func joinPath(base, seg string) string {
	if len(base) == 0 || base[len(base)-1] != '/' {
		base += "/"
	}
	return base + seg
}

// patientSearchParam returns the search parameter name FHIR uses to scope
// a resource type by patient: Patient itself uses "_id"; Condition,
// Observation, MedicationStatement, MedicationRequest, Procedure, and
// DiagnosticReport use "subject"; the rest (AllergyIntolerance,
// Immunization) use "patient".
func patientSearchParam(resourceType string) string {
	switch FHIRResourceKind(resourceType) {
	case KindPatient:
		return "_id"
	case KindCondition, KindObservation, KindMedicationStatement, KindMedicationRequest,
		KindProcedure, KindDiagnosticReport:
		return "subject"
	default:
		return "patient"
	}
}
