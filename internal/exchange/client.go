// Package exchange — REST и WebSocket клиент Coinbase Exchange.
package exchange

import (
	"bufio"
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Credentials — ключ, base64-секрет и passphrase одного портфеля.
type Credentials struct {
	Key        string
	Secret     string // base64
	Passphrase string
}

// LoadCredentials читает файл ключей: три строки — key, b64secret, passphrase.
func LoadCredentials(path string) (*Credentials, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open key file %s", path)
	}
	defer fh.Close()

	var lines []string
	sc := bufio.NewScanner(fh)
	for sc.Scan() && len(lines) < 3 {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "read key file %s", path)
	}
	if len(lines) < 3 {
		return nil, errors.Errorf("key file %s: want 3 lines (key, secret, passphrase), got %d", path, len(lines))
	}
	if _, err := base64.StdEncoding.DecodeString(lines[1]); err != nil {
		return nil, errors.Wrap(err, "key file: secret is not base64")
	}
	return &Credentials{Key: lines[0], Secret: lines[1], Passphrase: lines[2]}, nil
}

// Client — REST. Без Credentials доступны только публичные методы.
type Client struct {
	baseURL string
	http    *http.Client
	creds   *Credentials
	now     func() time.Time
}

func NewClient(baseURL string, timeout time.Duration, creds *Credentials) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		now:     time.Now,
	}
}

// sign: base64(HMAC-SHA256(b64decode(secret), ts+METHOD+path+body)).
func (c *Client) sign(ts, method, requestPath, body string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(c.creds.Secret)
	if err != nil {
		return "", errors.Wrap(err, "decode secret")
	}
	h := hmac.New(sha256.New, key)
	h.Write([]byte(ts + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// APIError — ответ биржи не 2xx.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return "coinbase http " + strconv.Itoa(e.Status) + ": " + e.Message
}

// do выполняет запрос и декодирует JSON-ответ в out. auth — подписывать ли запрос.
func (c *Client) do(ctx context.Context, method, requestPath string, in, out any, auth bool) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = sonic.Marshal(in); err != nil {
			return errors.Wrap(err, "marshal request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "crypto_bot")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if auth {
		if c.creds == nil {
			return errors.New("authenticated call without credentials")
		}
		ts := strconv.FormatInt(c.now().Unix(), 10)
		sign, err := c.sign(ts, method, requestPath, string(body))
		if err != nil {
			return err
		}
		req.Header.Set("CB-ACCESS-KEY", c.creds.Key)
		req.Header.Set("CB-ACCESS-SIGN", sign)
		req.Header.Set("CB-ACCESS-TIMESTAMP", ts)
		req.Header.Set("CB-ACCESS-PASSPHRASE", c.creds.Passphrase)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, requestPath)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if sonic.Unmarshal(data, &apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(data)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Message}
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decode %s body=%s", requestPath, truncate(data, 256))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
