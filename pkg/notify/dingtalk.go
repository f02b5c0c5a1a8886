package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"record-sync/config"
)

// ChatClient pushes messages through a chat-app robot: every call fetches an
// access token, files are uploaded first and then referenced by media id.
type ChatClient struct {
	cfg  config.Notify
	http *http.Client
}

// NewNotifier falls back to a log-only notifier when no app credentials are
// configured.
func NewNotifier(cfg config.Notify) Notifier {
	if cfg.AppKey == "" || cfg.ConversationId == "" {
		return NewLogNotifier()
	}
	return NewChatClient(cfg, &http.Client{Timeout: 30 * time.Second})
}

func NewChatClient(cfg config.Notify, client *http.Client) *ChatClient {
	return &ChatClient{cfg: cfg, http: client}
}

type oapiResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token"`
	MediaId     string `json:"media_id"`
}

func (r oapiResponse) err() error {
	if r.ErrCode != 0 {
		return fmt.Errorf("errcode %d: %s", r.ErrCode, r.ErrMsg)
	}
	return nil
}

type robotMessage struct {
	MsgParam           string `json:"msgParam"`
	MsgKey             string `json:"msgKey"`
	OpenConversationId string `json:"openConversationId"`
	RobotCode          string `json:"robotCode"`
}

func (c *ChatClient) SendText(ctx context.Context, text string) error {
	return deliver(ctx, c.cfg.Attempts, "send text", func() error {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		return c.sendRobot(ctx, token, "sampleText", map[string]string{"content": text})
	})
}

func (c *ChatClient) SendFile(ctx context.Context, path string) error {
	return deliver(ctx, c.cfg.Attempts, "send file", func() error {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		mediaId, err := c.uploadMedia(ctx, token, path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		return c.sendRobot(ctx, token, "sampleFile", map[string]string{
			"mediaId":  mediaId,
			"fileName": name,
			"fileType": strings.TrimPrefix(filepath.Ext(name), "."),
		})
	})
}

func (c *ChatClient) accessToken(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("appkey", c.cfg.AppKey)
	q.Set("appsecret", c.cfg.AppSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.TokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	var resp oapiResponse
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	if err := resp.err(); err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return resp.AccessToken, nil
}

func (c *ChatClient) uploadMedia(ctx context.Context, token, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("access_token", token)
	q.Set("type", "file")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.MediaURL+"?"+q.Encode(), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp oapiResponse
	if err := c.doJSON(req, &resp); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	if err := resp.err(); err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("file", path).Str("media_id", resp.MediaId).Msg("media uploaded")
	return resp.MediaId, nil
}

func (c *ChatClient) sendRobot(ctx context.Context, token, key string, param map[string]string) error {
	raw, err := json.Marshal(param)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(robotMessage{
		MsgParam:           string(raw),
		MsgKey:             key,
		OpenConversationId: c.cfg.ConversationId,
		RobotCode:          c.cfg.RobotCode,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Webhook, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-acs-dingtalk-access-token", token)
	if err := c.doJSON(req, nil); err != nil {
		return fmt.Errorf("send %s: %w", key, err)
	}
	zerolog.Ctx(ctx).Info().Str("msg_key", key).Msg("chat message sent")
	return nil
}

func (c *ChatClient) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
