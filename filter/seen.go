package filter

import (
	"context"
	"strconv"

	"github.com/rushteam/movierec/core"
)

// DefaultSeenKeyPrefix 是已看集合在 Store 中的 key 前缀，
// 实际 key 为 {prefix}:{userID}，Hash field 为 movie id。
const DefaultSeenKeyPrefix = "seen"

// SeenFilter 剔除用户已评分/已观看的影片，避免重复推荐。
// 已看集合由反馈流在处理 rate/watch 事件时写入。
type SeenFilter struct {
	Store     core.KeyValueStore
	KeyPrefix string // 默认 DefaultSeenKeyPrefix
}

func NewSeenFilter(store core.KeyValueStore, keyPrefix string) *SeenFilter {
	if keyPrefix == "" {
		keyPrefix = DefaultSeenKeyPrefix
	}
	return &SeenFilter{Store: store, KeyPrefix: keyPrefix}
}

func (f *SeenFilter) Name() string { return "filter.seen" }

func (f *SeenFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if f.Store == nil || rctx == nil {
		return false, nil
	}

	key := f.KeyPrefix + ":" + strconv.FormatInt(rctx.UserID, 10)
	_, err := f.Store.HGet(ctx, key, strconv.FormatInt(item.ID, 10))
	if err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SeenKey 返回某用户已看集合的 Hash key，供反馈流写入使用。
func SeenKey(keyPrefix string, userID int64) string {
	if keyPrefix == "" {
		keyPrefix = DefaultSeenKeyPrefix
	}
	return keyPrefix + ":" + strconv.FormatInt(userID, 10)
}
