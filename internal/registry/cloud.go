package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// CloudError carries the registry's reported entitlement failure so the
// caller can surface the registry's own status code and upsell details.
type CloudError struct {
	Code       string
	HTTPStatus int
	Message    string
}

func (e *CloudError) Error() string {
	return e.Message
}

// CloudClient downloads premium packages using configured cloud
// credentials.
type CloudClient struct {
	baseURL   string
	accessKey string
	secretKey string
	http      *http.Client
}

// NewCloudClient creates a premium-download client. Empty credentials are
// allowed; IsConfigured gates actual use.
func NewCloudClient(baseURL, accessKey, secretKey string) *CloudClient {
	return &CloudClient{
		baseURL:   baseURL,
		accessKey: accessKey,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// IsConfigured reports whether cloud credentials are present. Callers must
// check this before attempting a premium download.
func (c *CloudClient) IsConfigured() bool {
	return c.accessKey != "" && c.secretKey != ""
}

// DownloadPremium fetches a premium package version. Entitlement failures
// are returned as *CloudError with the registry's status code preserved.
func (c *CloudClient) DownloadPremium(identifier, version string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/premium/download/%s?version=%s",
		c.baseURL, url.PathEscape(identifier), url.QueryEscape(version))

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create premium download request: %w", err)
	}
	req.Header.Set("X-Access-Key", c.accessKey)
	req.Header.Set("X-Secret-Key", c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("premium download failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read premium download response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		cloudErr := &CloudError{
			Code:       "PREMIUM_DOWNLOAD_FAILED",
			HTTPStatus: resp.StatusCode,
			Message:    fmt.Sprintf("premium download returned status %d", resp.StatusCode),
		}
		// Surface the registry's own error code and message when it sends
		// a JSON body.
		var envelope struct {
			Message   string `json:"message"`
			ErrorCode string `json:"error_code"`
		}
		if json.Unmarshal(body, &envelope) == nil {
			if envelope.Message != "" {
				cloudErr.Message = envelope.Message
			}
			if envelope.ErrorCode != "" {
				cloudErr.Code = envelope.ErrorCode
			}
		}
		if cloudErr.HTTPStatus == 0 {
			cloudErr.HTTPStatus = http.StatusPaymentRequired
		}
		return nil, cloudErr
	}

	return body, nil
}
