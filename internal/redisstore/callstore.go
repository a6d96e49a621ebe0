package redisstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"carelink/internal/domain/call"
	"carelink/internal/store"
	carelink_errors "carelink/pkg/errors"
	"carelink/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// Redis key prefixes for call records
const (
	recordKeyPrefix    = "call:record:"   // JSON-encoded CallRecord
	incomingChanPrefix = "call:incoming:" // pub/sub channel per callee
	pendingKeyPrefix   = "call:pending:"  // set of INITIATED callIds per callee
	defaultRecordTTL   = 24 * time.Hour   // bounds records stuck in INITIATED
	transitionRetries  = 8
	subscriptionBuffer = 16
)

// CallStore is the Redis-backed RecordStore. Conditional transitions use
// WATCH/MULTI optimistic transactions so racing writers cannot both apply
// a transition out of the same state.
type CallStore struct {
	client *goredis.Client
	ttl    time.Duration
	log    *logger.Logger
	now    func() time.Time
}

var _ store.RecordStore = (*CallStore)(nil)

func NewCallStore(client *goredis.Client, ttl time.Duration, log *logger.Logger) *CallStore {
	if ttl <= 0 {
		ttl = defaultRecordTTL
	}
	return &CallStore{client: client, ttl: ttl, log: log, now: time.Now}
}

func (s *CallStore) Create(ctx context.Context, rec *call.Record) error {
	if rec == nil || rec.CallID == "" || !rec.Status.Valid() {
		return carelink_errors.ErrInvalidInput
	}
	cp := rec.Clone()
	cp.Timestamp = s.now()
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, recordKeyPrefix+cp.CallID, data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return carelink_errors.ErrInvalidInput
	}
	rec.Timestamp = cp.Timestamp
	if cp.Status == call.StatusInitiated {
		// The pending set lets a subscriber arriving after the propose
		// replay the offer; pub/sub alone would drop it.
		pendingKey := pendingKeyPrefix + cp.CalleeID
		_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SAdd(ctx, pendingKey, cp.CallID)
			pipe.Expire(ctx, pendingKey, s.ttl)
			pipe.Publish(ctx, incomingChanPrefix+cp.CalleeID, data)
			return nil
		})
		if err != nil && s.log != nil {
			s.log.Warnf("incoming-call fanout failed for %s: %v", cp.CallID, err)
		}
	}
	return nil
}

func (s *CallStore) Get(ctx context.Context, callID string) (*call.Record, error) {
	data, err := s.client.Get(ctx, recordKeyPrefix+callID).Result()
	if err == goredis.Nil {
		return nil, carelink_errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec call.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *CallStore) Transition(ctx context.Context, callID string, to call.Status) (bool, *call.Record, error) {
	if !to.Valid() {
		return false, nil, carelink_errors.ErrInvalidInput
	}
	key := recordKeyPrefix + callID

	var applied bool
	var result *call.Record

	txn := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err == goredis.Nil {
			return carelink_errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec call.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return err
		}
		if !rec.Status.CanTransition(to) {
			applied = false
			result = &rec
			return nil
		}
		wasPending := rec.Status == call.StatusInitiated
		rec.Status = to
		rec.Stamp(to, s.now())
		next, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, next, goredis.KeepTTL)
			if wasPending {
				pipe.SRem(ctx, pendingKeyPrefix+rec.CalleeID, rec.CallID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		applied = true
		result = &rec
		return nil
	}

	for i := 0; i < transitionRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == goredis.TxFailedErr {
			// Another writer touched the record; re-read and retry.
			continue
		}
		if err != nil {
			return false, nil, err
		}
		return applied, result, nil
	}
	return false, nil, carelink_errors.ErrServiceUnavailable
}

func (s *CallStore) SubscribeIncoming(ctx context.Context, calleeID string) (store.Subscription, error) {
	pubsub := s.client.Subscribe(ctx, incomingChanPrefix+calleeID)
	// Force the subscribe round-trip so a dead connection fails here,
	// not silently in the consume loop.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	pendingKey := pendingKeyPrefix + calleeID
	pendingIDs, err := s.client.SMembers(ctx, pendingKey).Result()
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan *call.Record, subscriptionBuffer)
	sub := &redisSubscription{pubsub: pubsub, ch: out}
	go func() {
		defer close(out)
		// Replay offers pending before the subscribe, then follow the
		// live feed. The set is read after the subscribe handshake, so a
		// record can show up in both; seen dedupes it.
		seen := make(map[string]bool)
		for _, id := range pendingIDs {
			rec, err := s.Get(context.Background(), id)
			if err != nil || rec.Status != call.StatusInitiated {
				// Stale index entry, drop it.
				s.client.SRem(context.Background(), pendingKey, id)
				continue
			}
			seen[rec.CallID] = true
			select {
			case out <- rec:
			default:
			}
		}
		for msg := range pubsub.Channel() {
			var rec call.Record
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				if s.log != nil {
					s.log.Errorf("bad incoming-call payload: %v", err)
				}
				continue
			}
			if rec.Status != call.StatusInitiated || seen[rec.CallID] {
				continue
			}
			seen[rec.CallID] = true
			select {
			case out <- &rec:
			default:
				// Subscriber not draining; it will resync via Get.
			}
		}
	}()
	return sub, nil
}

type redisSubscription struct {
	pubsub *goredis.PubSub
	ch     chan *call.Record
	once   sync.Once
}

func (r *redisSubscription) Records() <-chan *call.Record { return r.ch }

func (r *redisSubscription) Cancel() {
	r.once.Do(func() {
		_ = r.pubsub.Close()
	})
}
