package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Event reports the outcome of one conversion.
type Event struct {
	Job       string `json:"job"`
	File      string `json:"file"`
	Output    string `json:"output,omitempty"`
	Records   int    `json:"records"`
	Dropped   int    `json:"dropped"`
	Bytes     int64  `json:"bytes"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Client posts events to the configured URL. The body is signed with
// HMAC-SHA256 over "<timestamp>\n<body>" using the shared secret.
type Client struct {
	config *Config
	http   *http.Client
}

// New reads the "webhook" key of v. A Client without URL sends nothing.
func New(v *viper.Viper) *Client {
	config := &Config{}
	v.UnmarshalKey("webhook", config)
	return NewClient(config)
}

func NewClient(config *Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{config: config, http: &http.Client{Timeout: timeout}}
}

func (c *Client) Enabled() bool {
	return c != nil && c.config.URL != ""
}

func (c *Client) Sign(timestamp int64, body []byte) string {
	h := hmac.New(sha256.New, []byte(c.config.Secret))
	fmt.Fprintf(h, "%d\n", timestamp)
	h.Write(body)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (c *Client) Send(ev Event) error {
	if !c.Enabled() {
		return nil
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook event")
	}

	req, err := http.NewRequest(http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Timestamp", strconv.FormatInt(ev.Timestamp, 10))
	if c.config.Secret != "" {
		req.Header.Set("X-Signature", c.Sign(ev.Timestamp, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
