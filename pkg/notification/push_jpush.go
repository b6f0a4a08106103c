package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultJPushEndpoint 极光推送 v3 接口
const DefaultJPushEndpoint = "https://api.jpush.cn/v3/push"

type JPushConfig struct {
	AppKey       string
	MasterSecret string
	Endpoint     string
}

// Enabled 是否配置了凭据
func (c JPushConfig) Enabled() bool { return c.AppKey != "" && c.MasterSecret != "" }

type JPushClient interface {
	Push(ctx context.Context, title, content string, audience any, extras map[string]any) error
}

type JPush struct {
	cfg JPushConfig
	cli JPushClient
}

// NewJPush cli 为 nil 时使用 HTTP 客户端
func NewJPush(cfg JPushConfig, cli JPushClient) *JPush {
	if cli == nil {
		cli = NewHTTPJPushClient(cfg, nil)
	}
	return &JPush{cfg: cfg, cli: cli}
}

func (j *JPush) PushToAlias(ctx context.Context, alias []string, title, content string, extras map[string]any) error {
	return j.cli.Push(ctx, title, content, map[string]any{"alias": alias}, extras)
}

func (j *JPush) PushToAll(ctx context.Context, title, content string, extras map[string]any) error {
	return j.cli.Push(ctx, title, content, "all", extras)
}

// Name implements Sink
func (j *JPush) Name() string { return "jpush" }

// Send implements Sink：广播到所有调度员设备
func (j *JPush) Send(ctx context.Context, msg Message) error {
	extras := map[string]any{"alert_id": msg.AlertID, "kind": string(msg.Kind)}
	if msg.Position != nil {
		extras["lat"] = msg.Position.Lat
		extras["lng"] = msg.Position.Lng
	}
	return j.PushToAll(ctx, msg.Title, msg.Body, extras)
}

type httpJPushClient struct {
	cfg  JPushConfig
	http *http.Client
}

// NewHTTPJPushClient 基于 REST v3 的实现
func NewHTTPJPushClient(cfg JPushConfig, hc *http.Client) JPushClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultJPushEndpoint
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &httpJPushClient{cfg: cfg, http: hc}
}

func (c *httpJPushClient) Push(ctx context.Context, title, content string, audience any, extras map[string]any) error {
	payload := map[string]any{
		"platform": "all",
		"audience": audience,
		"notification": map[string]any{
			"alert":   content,
			"android": map[string]any{"title": title, "alert": content, "extras": extras},
			"ios":     map[string]any{"alert": map[string]string{"title": title, "body": content}, "extras": extras, "sound": "default"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.AppKey, c.cfg.MasterSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jpush: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
