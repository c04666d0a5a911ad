package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bindery-orders/internal/apperror"
	"bindery-orders/internal/domain"
	"bindery-orders/internal/infra"

	"github.com/redis/go-redis/v9"
)

// saveIntentScript writes the intent and its owner with one TTL unless another
// user already owns the merchantUid.
var saveIntentScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[2])
if owner and owner ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[3])
return 1
`)

type IntentStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ infra.IntentStore = (*IntentStore)(nil)

func NewIntentStore(client *redis.Client, ttl time.Duration) *IntentStore {
	return &IntentStore{client: client, ttl: ttl}
}

func (s *IntentStore) Save(ctx context.Context, intent *domain.CheckoutIntent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent failed: %w", err)
	}
	keys := []string{intentKey(intent.MerchantUID), intentOwnerKey(intent.MerchantUID)}
	saved, err := saveIntentScript.Run(ctx, s.client, keys, intent.UserID, data, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis save intent failed: %w", err)
	}
	if saved == 0 {
		return apperror.ErrIntentTaken
	}
	return nil
}

func (s *IntentStore) Get(ctx context.Context, merchantUID string) (*domain.CheckoutIntent, error) {
	data, err := s.client.Get(ctx, intentKey(merchantUID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var intent domain.CheckoutIntent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("unmarshal intent failed: %w", err)
	}
	return &intent, nil
}

func (s *IntentStore) Delete(ctx context.Context, merchantUID string) error {
	if err := s.client.Del(ctx, intentKey(merchantUID), intentOwnerKey(merchantUID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func intentKey(merchantUID string) string {
	return fmt.Sprintf("checkout:intent:%s", merchantUID)
}

func intentOwnerKey(merchantUID string) string {
	return intentKey(merchantUID) + ":owner"
}
