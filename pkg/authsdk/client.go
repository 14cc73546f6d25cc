package authsdk

import (
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

const maxResponseBody = 1 << 20

// SDKClient is a client for the SSO broker. It holds the broker session
// cookie in its cookie jar, so one SDKClient represents one signed-in user.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a broker client with its own cookie jar. Redirects
// are never followed: the broker answers login and callback with redirects
// whose Location is the information the caller wants.
func NewSDKClient(baseURL string) *SDKClient {
	jar, _ := cookiejar.New(nil) // only fails with non-nil options

	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// SessionCookies returns the cookies the jar would send to the broker.
func (c *SDKClient) SessionCookies() []*http.Cookie {
	if c.HTTPClient.Jar == nil {
		return nil
	}
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"/", nil)
	if err != nil {
		return nil
	}
	return c.HTTPClient.Jar.Cookies(req.URL)
}
