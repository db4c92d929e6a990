package poolcfg

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdSource watches a single etcd key holding a JSON-encoded Config and pushes
// parsed updates to a channel, the way registry.EtcdRegistry.Watch re-fetches and
// republishes on every change under a prefix.
type EtcdSource struct {
	client *clientv3.Client
	key    string
}

// NewEtcdSource connects to the given etcd endpoints and watches key.
func NewEtcdSource(endpoints []string, key string) (*EtcdSource, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	return &EtcdSource{client: c, key: key}, nil
}

// Watch returns a channel of parsed Config updates. The first value, if the key
// already exists, is delivered immediately; subsequent values arrive on every put.
// Malformed JSON is silently skipped — the pool keeps running on its last-known-good
// config rather than being torn down by an operator typo.
func (s *EtcdSource) Watch(ctx context.Context) <-chan Config {
	out := make(chan Config, 1)

	go func() {
		if resp, err := s.client.Get(ctx, s.key); err == nil && len(resp.Kvs) > 0 {
			if cfg, ok := decode(resp.Kvs[0].Value); ok {
				out <- cfg
			}
		}

		watchChan := s.client.Watch(ctx, s.key)
		for resp := range watchChan {
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				if cfg, ok := decode(ev.Kv.Value); ok {
					out <- cfg
				}
			}
		}
		close(out)
	}()

	return out
}

func decode(raw []byte) (Config, bool) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, false
	}
	return cfg, true
}
