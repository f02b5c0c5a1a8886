package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"record-sync/config"
	"record-sync/constant"
)

// Sign computes the robot signature for a millisecond timestamp:
// base64(HMAC-SHA256(secret, "<timestamp>\n<secret>")).
func Sign(secret string, timestampMs int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10) + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type AlertClient struct {
	cfg      config.Alert
	attempts uint
	http     *http.Client
	now      func() time.Time
}

// NewAlerter falls back to logging when no alert webhook is configured.
func NewAlerter(cfg config.Alert, attempts uint) Alerter {
	if cfg.Webhook == "" {
		return NewLogAlerter()
	}
	return NewAlertClient(cfg, attempts, &http.Client{Timeout: 15 * time.Second})
}

func NewAlertClient(cfg config.Alert, attempts uint, client *http.Client) *AlertClient {
	return &AlertClient{cfg: cfg, attempts: attempts, http: client, now: time.Now}
}

type textMessage struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
	At struct {
		IsAtAll bool `json:"isAtAll"`
	} `json:"at"`
}

// FormatAlert renders the alert body.
func FormatAlert(project string, at time.Time, severity constant.Severity, information, details string) string {
	return fmt.Sprintf("Project: %s\nTime: %s\nSeverity: %s\nInformation: %s\nDetails: %s",
		project, at.Format(constant.TimeLayout), severity, information, details)
}

func (a *AlertClient) Alert(ctx context.Context, severity constant.Severity, information, details string) error {
	now := a.now()
	var msg textMessage
	msg.MsgType = "text"
	msg.Text.Content = FormatAlert(a.cfg.Project, now, severity, information, details)
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	target, err := a.signedURL(now)
	if err != nil {
		return err
	}

	return deliver(ctx, a.attempts, "send alert", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json;charset=utf-8")
		resp, err := a.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
		var result oapiResponse
		if err := json.Unmarshal(body, &result); err == nil {
			if err := result.err(); err != nil {
				return err
			}
		}
		zerolog.Ctx(ctx).Info().Str("severity", string(severity)).Str("information", information).Msg("alert sent")
		return nil
	})
}

func (a *AlertClient) signedURL(now time.Time) (string, error) {
	u, err := url.Parse(a.cfg.Webhook)
	if err != nil {
		return "", fmt.Errorf("parse alert webhook: %w", err)
	}
	if a.cfg.Secret == "" {
		return u.String(), nil
	}
	ts := now.UnixMilli()
	q := u.Query()
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", Sign(a.cfg.Secret, ts))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
