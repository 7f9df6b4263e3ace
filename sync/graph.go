// ABOUTME: Microsoft Graph SDK service shared by the planner and directory clients
// ABOUTME: Authenticates requests from an oauth2 token source and converts SDK errors to GraphError
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	"golang.org/x/oauth2"
)

const defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphError is a non-2xx response from Graph.
type GraphError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *GraphError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graph API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph API error %d: %s", e.StatusCode, e.Message)
}

// isNotFound reports whether err is a Graph 404.
func isNotFound(err error) bool {
	var gerr *GraphError
	return errors.As(err, &gerr) && gerr.StatusCode == http.StatusNotFound
}

// asGraphError flattens the SDK's OData and API errors into a GraphError.
// Transport failures pass through unchanged.
func asGraphError(err error) error {
	if err == nil {
		return nil
	}

	var oerr *odataerrors.ODataError
	if errors.As(err, &oerr) {
		gerr := &GraphError{StatusCode: oerr.ResponseStatusCode, Message: oerr.Message}
		if main := oerr.GetErrorEscaped(); main != nil {
			if code := main.GetCode(); code != nil {
				gerr.Code = *code
			}
			if msg := main.GetMessage(); msg != nil {
				gerr.Message = *msg
			}
		}
		if gerr.Message == "" {
			gerr.Message = http.StatusText(gerr.StatusCode)
		}
		return gerr
	}

	var aerr *abstractions.ApiError
	if errors.As(err, &aerr) && aerr.ResponseStatusCode != 0 {
		msg := aerr.Message
		if msg == "" {
			msg = http.StatusText(aerr.ResponseStatusCode)
		}
		return &GraphError{StatusCode: aerr.ResponseStatusCode, Message: msg}
	}

	return err
}

// tokenAuthProvider signs SDK requests with tokens from an oauth2 source.
type tokenAuthProvider struct {
	source oauth2.TokenSource
}

func (p *tokenAuthProvider) AuthenticateRequest(ctx context.Context, request *abstractions.RequestInformation, _ map[string]interface{}) error {
	token, err := p.source.Token()
	if err != nil {
		return fmt.Errorf("failed to get graph token: %w", err)
	}
	request.Headers.Add("Authorization", "Bearer "+token.AccessToken)
	return nil
}

// GraphService is an authenticated Graph SDK client plus the adapter its page
// iterators need.
type GraphService struct {
	client  *msgraphsdk.GraphServiceClient
	adapter *msgraphsdk.GraphRequestAdapter
}

// NewGraphService creates the Graph SDK client for the configured app registration.
// The configured timeout bounds every Graph call.
func NewGraphService(ctx context.Context, cfg *Config) (*GraphService, error) {
	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("graph credentials not configured. Set PLANSYNC_TENANT_ID, PLANSYNC_CLIENT_ID and PLANSYNC_CLIENT_SECRET")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: cfg.RequestTimeout})
	return newGraphService(NewOAuthConfig(cfg).TokenSource(ctx), cfg.GraphBaseURL, cfg.RequestTimeout)
}

func newGraphService(source oauth2.TokenSource, baseURL string, timeout time.Duration) (*GraphService, error) {
	options := msgraphsdk.GetDefaultClientOptions()
	httpClient := msgraphcore.GetDefaultClient(&options)
	httpClient.Timeout = timeout

	adapter, err := msgraphsdk.NewGraphRequestAdapterWithParseNodeFactoryAndSerializationWriterFactoryAndHttpClient(
		&tokenAuthProvider{source: source}, nil, nil, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph request adapter: %w", err)
	}

	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	adapter.SetBaseUrl(strings.TrimRight(baseURL, "/"))

	return &GraphService{client: msgraphsdk.NewGraphServiceClient(adapter), adapter: adapter}, nil
}

// BaseURL is the Graph root requests are sent to.
func (s *GraphService) BaseURL() string {
	return s.adapter.GetBaseUrl()
}

// etagOf reads the @odata.etag annotation the SDK keeps in additional data.
func etagOf(additional map[string]any) string {
	switch v := additional["@odata.etag"].(type) {
	case *string:
		if v != nil {
			return *v
		}
	case string:
		return v
	case interface{ GetValue() *string }:
		if s := v.GetValue(); s != nil {
			return *s
		}
	}
	return ""
}

func ifMatchHeaders(etag string, representation bool) *abstractions.RequestHeaders {
	headers := abstractions.NewRequestHeaders()
	if etag != "" {
		headers.Add("If-Match", etag)
	}
	if representation {
		headers.Add("Prefer", "return=representation")
	}
	return headers
}
