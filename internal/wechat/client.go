// Package wechat is a minimal client for the mp.weixin.qq.com admin backend.
package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/model"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the production backend.
	DefaultBaseURL = "https://mp.weixin.qq.com"
	// DefaultProbeAccount is searched for when probing a cookie.
	DefaultProbeAccount = "刘坏坏"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"
)

// Options configures a Client.
type Options struct {
	BaseURL      string
	ProbeAccount string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client performs the searchbiz and appmsgpublish calls.
type Client struct {
	baseURL      string
	probeAccount string
	http         *http.Client
	auth         *AuthSource
	log          *zap.Logger
}

// NewClient constructs a Client. auth supplies token and fingerprint for probes.
func NewClient(auth *AuthSource, opts Options, log *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ProbeAccount == "" {
		opts.ProbeAccount = DefaultProbeAccount
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if auth == nil {
		auth = NewAuthSource(model.AuthInfo{})
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		probeAccount: opts.ProbeAccount,
		http:         hc,
		auth:         auth,
		log:          log,
	}
}

// Auth exposes the client's auth source.
func (c *Client) Auth() *AuthSource { return c.auth }

type baseResp struct {
	Ret    int    `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

type searchResp struct {
	BaseResp *baseResp      `json:"base_resp"`
	List     []model.Account `json:"list"`
}

type publishResp struct {
	BaseResp    *baseResp `json:"base_resp"`
	PublishPage string    `json:"publish_page"`
}

type publishPage struct {
	PublishList []struct {
		PublishInfo string `json:"publish_info"`
	} `json:"publish_list"`
}

type publishInfo struct {
	SentStatus struct {
		Total int `json:"total"`
	} `json:"sent_status"`
}

// Probe runs one searchbiz request with cookie and classifies the session.
// Any transport, status or decoding failure yields Invalid. Without a
// complete auth info it does not call out and returns ErrProbeUnconfigured.
func (c *Client) Probe(ctx context.Context, cookie string) (model.Validity, error) {
	auth := c.auth.Get()
	if !auth.Complete() {
		return model.Unknown, errs.ErrProbeUnconfigured
	}

	var out searchResp
	if err := c.get(ctx, c.searchURL(c.probeAccount, auth), cookie, auth, &out); err != nil {
		c.log.Info("probe failed", zap.Error(err))
		return model.Invalid, nil
	}
	if out.BaseResp == nil || out.BaseResp.Ret != 0 {
		if out.BaseResp != nil {
			c.log.Info("probe rejected", zap.Int("ret", out.BaseResp.Ret), zap.String("err_msg", out.BaseResp.ErrMsg))
		}
		return model.Invalid, nil
	}
	return model.Valid, nil
}

// SearchAccount returns the first account matching name.
func (c *Client) SearchAccount(ctx context.Context, name, cookie string, auth model.AuthInfo) (model.Account, error) {
	var out searchResp
	if err := c.get(ctx, c.searchURL(name, auth), cookie, auth, &out); err != nil {
		return model.Account{}, fmt.Errorf("searchbiz: %w", err)
	}
	if out.BaseResp == nil || out.BaseResp.Ret != 0 {
		return model.Account{}, errs.ErrSessionRejected
	}
	if len(out.List) == 0 {
		return model.Account{}, errs.ErrAccountNotFound
	}
	return out.List[0], nil
}

// FansCount reads the follower total from the account's latest publish record.
// An account without publish records has a count of 0.
func (c *Client) FansCount(ctx context.Context, fakeID, cookie string, auth model.AuthInfo) (int, error) {
	q := url.Values{}
	q.Set("sub", "list")
	q.Set("search_field", "null")
	q.Set("begin", "0")
	q.Set("count", "5")
	q.Set("query", "")
	q.Set("fakeid", fakeID)
	q.Set("type", "101_1")
	q.Set("free_publish_type", "1")
	q.Set("sub_action", "list_ex")
	c.common(q, auth)

	var out publishResp
	if err := c.get(ctx, c.baseURL+"/cgi-bin/appmsgpublish?"+q.Encode(), cookie, auth, &out); err != nil {
		return 0, fmt.Errorf("appmsgpublish: %w", err)
	}
	if out.BaseResp == nil || out.BaseResp.Ret != 0 {
		return 0, errs.ErrSessionRejected
	}
	if out.PublishPage == "" {
		return 0, nil
	}

	var page publishPage
	if err := json.Unmarshal([]byte(out.PublishPage), &page); err != nil {
		return 0, fmt.Errorf("decode publish_page: %w", err)
	}
	if len(page.PublishList) == 0 || page.PublishList[0].PublishInfo == "" {
		return 0, nil
	}
	var info publishInfo
	if err := json.Unmarshal([]byte(page.PublishList[0].PublishInfo), &info); err != nil {
		return 0, fmt.Errorf("decode publish_info: %w", err)
	}
	return info.SentStatus.Total, nil
}

func (c *Client) searchURL(name string, auth model.AuthInfo) string {
	q := url.Values{}
	q.Set("action", "search_biz")
	q.Set("begin", "0")
	q.Set("count", "5")
	q.Set("query", name)
	c.common(q, auth)
	return c.baseURL + "/cgi-bin/searchbiz?" + q.Encode()
}

func (c *Client) common(q url.Values, auth model.AuthInfo) {
	q.Set("fingerprint", auth.Fingerprint)
	q.Set("token", auth.Token)
	q.Set("lang", "zh_CN")
	q.Set("f", "json")
	q.Set("ajax", "1")
}

func (c *Client) get(ctx context.Context, u, cookie string, auth model.AuthInfo, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cookie", cookie)
	req.Header.Set("Referer", c.baseURL+"/cgi-bin/appmsg?t=media/appmsg_edit_v2&action=edit&isNew=1&type=77&createType=0&token="+
		url.QueryEscape(auth.Token)+"&lang=zh_CN")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return errors.New("unexpected status " + strconv.Itoa(resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
