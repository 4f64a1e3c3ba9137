package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/wechat"
	"go.uber.org/zap"
)

// FansClient performs the two remote lookups of a fans query.
type FansClient interface {
	SearchAccount(ctx context.Context, name, cookie string, auth model.AuthInfo) (model.Account, error)
	FansCount(ctx context.Context, fakeID, cookie string, auth model.AuthInfo) (int, error)
}

// FansQuery is a follower-count request. Cookie, Token and Fingerprint
// are optional when the pool and auth source can supply them.
type FansQuery struct {
	AccountName string
	Cookie      string
	Token       string
	Fingerprint string
}

// FansService answers follower-count queries with a pooled cookie.
type FansService struct {
	pool   PoolService
	client FansClient
	auth   *wechat.AuthSource
	log    *zap.Logger
}

// NewFansService constructs a FansService.
func NewFansService(pool PoolService, client FansClient, auth *wechat.AuthSource, log *zap.Logger) *FansService {
	if auth == nil {
		auth = wechat.NewAuthSource(model.AuthInfo{})
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FansService{pool: pool, client: client, auth: auth, log: log}
}

// Query resolves the account by name and reads its follower count.
// A cookie in the request is pooled first; the pool then picks the
// cookie to use, falling back to the request's own cookie.
func (s *FansService) Query(ctx context.Context, q FansQuery) (model.FansResult, error) {
	name := strings.TrimSpace(q.AccountName)
	if name == "" {
		return model.FansResult{}, fmt.Errorf("%w: account_name is required", errs.ErrInvalidArgument)
	}

	s.auth.Observe(model.AuthInfo{Token: q.Token, Fingerprint: q.Fingerprint})
	auth := s.auth.Get()
	if !auth.Complete() {
		return model.FansResult{}, fmt.Errorf("%w: token and fingerprint are required", errs.ErrInvalidArgument)
	}

	cookie, err := s.cookie(ctx, q.Cookie)
	if err != nil {
		return model.FansResult{}, err
	}

	acc, err := s.client.SearchAccount(ctx, name, cookie, auth)
	if err != nil {
		return model.FansResult{}, err
	}
	n, err := s.client.FansCount(ctx, acc.FakeID, cookie, auth)
	if err != nil {
		if !errors.Is(err, errs.ErrSessionRejected) {
			return model.FansResult{}, err
		}
		s.log.Warn("fans count rejected, reporting 0", zap.String("fakeid", acc.FakeID))
		n = 0
	}

	return model.FansResult{
		FansCount: n,
		Avatar:    acc.HeadImage,
		WechatID:  acc.Alias,
		Signature: acc.Signature,
		Nickname:  acc.Nickname,
		FakeID:    acc.FakeID,
	}, nil
}

func (s *FansService) cookie(ctx context.Context, supplied string) (string, error) {
	if strings.TrimSpace(supplied) != "" {
		if _, err := s.pool.Add(ctx, supplied); err != nil {
			s.log.Warn("pool supplied cookie", zap.Error(err))
		}
	}
	c, err := s.pool.Select(ctx)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, errs.ErrNoneAvailable) {
		return "", err
	}
	if strings.TrimSpace(supplied) != "" {
		return supplied, nil
	}
	return "", err
}
