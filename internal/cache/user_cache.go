package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/docman/internal/model"
	"github.com/redis/go-redis/v9"
)

// DefaultUserTTL はユーザーキャッシュの有効期間。
const DefaultUserTTL = 5 * time.Minute

const userKeyPrefix = "docman:user:"

// cachedUser はRedisに保存するユーザーの表現。パスワードハッシュは含めない。
type cachedUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserCache は正規化済みメールアドレスをキーにユーザーをキャッシュする。
// 認証済みリクエストごとの主体解決でDBを引かずに済ませるために使う。
type UserCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewUserCache はUserCacheを生成する。ttlが0以下の場合はDefaultUserTTLを使う。
func NewUserCache(client redis.Cmdable, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = DefaultUserTTL
	}
	return &UserCache{client: client, ttl: ttl}
}

// Get はキャッシュからユーザーを取得する。存在しない場合はnil, nilを返す。
// 返すユーザーのPasswordHashは常に空。
func (c *UserCache) Get(ctx context.Context, email string) (*model.User, error) {
	data, err := c.client.Get(ctx, userKey(email)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached user: %w", err)
	}
	return decodeUser(data)
}

// Set はユーザーをキャッシュに保存する。
func (c *UserCache) Set(ctx context.Context, u *model.User) error {
	data, err := encodeUser(u)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, userKey(u.Email), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache user: %w", err)
	}
	return nil
}

// Delete は指定メールアドレスのキャッシュを破棄する。
// メールアドレス変更時は新旧両方を渡す。
func (c *UserCache) Delete(ctx context.Context, emails ...string) error {
	if len(emails) == 0 {
		return nil
	}
	keys := make([]string, 0, len(emails))
	for _, e := range emails {
		keys = append(keys, userKey(e))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached user: %w", err)
	}
	return nil
}

func userKey(email string) string {
	return userKeyPrefix + model.NormalizeEmail(email)
}

func encodeUser(u *model.User) ([]byte, error) {
	data, err := json.Marshal(cachedUser{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cached user: %w", err)
	}
	return data, nil
}

func decodeUser(data []byte) (*model.User, error) {
	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		return nil, fmt.Errorf("failed to decode cached user: %w", err)
	}
	return &model.User{
		ID:        cu.ID,
		Email:     cu.Email,
		FullName:  cu.FullName,
		CreatedAt: cu.CreatedAt,
		UpdatedAt: cu.UpdatedAt,
	}, nil
}
