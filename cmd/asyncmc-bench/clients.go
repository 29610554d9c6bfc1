package main

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	bradfitz "github.com/bradfitz/gomemcache/memcache"

	"github.com/ErDmKo/asyncmc"
	"github.com/ErDmKo/asyncmc/text"
)

// Client is the surface the benchmarks drive, implemented by asyncmc and by
// bradfitz/gomemcache as a baseline.
type Client interface {
	Get(ctx context.Context, key string) (asyncmc.Item, error)
	MultiGet(ctx context.Context, keys ...string) ([]asyncmc.Item, error)
	Set(ctx context.Context, item asyncmc.Item, opts ...asyncmc.CallOption) (bool, error)
	Append(ctx context.Context, item asyncmc.Item, opts ...asyncmc.CallOption) (bool, error)
	Delete(ctx context.Context, key string, opts ...asyncmc.CallOption) (bool, error)
}

type clientConfig struct {
	servers     string
	pool        string
	maxSize     int
	concurrency int
	bradfitz    bool
}

func createClient(config clientConfig) (Client, func()) {
	servers := strings.Split(config.servers, ",")

	if config.bradfitz {
		cli := bradfitz.New(servers...)
		cli.MaxIdleConns = config.concurrency * 2
		cli.Timeout = 5 * time.Second
		return &bradfitzClient{cli}, func() {} // idle connections are dropped with the process
	}

	cfg := asyncmc.Config{
		MinSize:             2,
		MaxSize:             int32(config.maxSize),
		ConnectTimeout:      5 * time.Second,
		HealthCheckInterval: time.Minute,
		MaxIdleTime:         5 * time.Minute,
	}
	if config.pool == "puddle" {
		cfg.Pool = asyncmc.NewPuddlePool
	}

	cli, err := asyncmc.NewClient(servers, cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	return cli, cli.Close
}

// bradfitzClient adapts bradfitz/gomemcache. Values go through the same
// flag encoding as asyncmc, so both clients read each other's items.
type bradfitzClient struct {
	*bradfitz.Client
}

func (c *bradfitzClient) Get(ctx context.Context, key string) (asyncmc.Item, error) {
	item, err := c.Client.Get(key)
	if errors.Is(err, bradfitz.ErrCacheMiss) {
		return asyncmc.Item{Key: key}, nil
	}
	if err != nil {
		return asyncmc.Item{}, err
	}
	return decodeItem(item)
}

func (c *bradfitzClient) MultiGet(ctx context.Context, keys ...string) ([]asyncmc.Item, error) {
	found, err := c.Client.GetMulti(keys)
	if err != nil {
		return nil, err
	}

	items := make([]asyncmc.Item, len(keys))
	for i, key := range keys {
		item, ok := found[key]
		if !ok {
			items[i] = asyncmc.Item{Key: key}
			continue
		}
		if items[i], err = decodeItem(item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (c *bradfitzClient) Set(ctx context.Context, item asyncmc.Item, _ ...asyncmc.CallOption) (bool, error) {
	bi, err := encodeItem(item)
	if err != nil {
		return false, err
	}
	return true, c.Client.Set(bi)
}

func (c *bradfitzClient) Append(ctx context.Context, item asyncmc.Item, _ ...asyncmc.CallOption) (bool, error) {
	bi, err := encodeItem(item)
	if err != nil {
		return false, err
	}
	err = c.Client.Append(bi)
	if errors.Is(err, bradfitz.ErrNotStored) {
		return false, nil
	}
	return err == nil, err
}

func (c *bradfitzClient) Delete(ctx context.Context, key string, _ ...asyncmc.CallOption) (bool, error) {
	err := c.Client.Delete(key)
	if errors.Is(err, bradfitz.ErrCacheMiss) {
		return false, nil
	}
	return err == nil, err
}

func encodeItem(item asyncmc.Item) (*bradfitz.Item, error) {
	data, flags, err := text.EncodeValue(item.Value)
	if err != nil {
		return nil, err
	}
	return &bradfitz.Item{
		Key:        item.Key,
		Value:      data,
		Flags:      flags,
		Expiration: int32(item.Exptime),
	}, nil
}

func decodeItem(item *bradfitz.Item) (asyncmc.Item, error) {
	value, err := text.DecodeValue(item.Value, item.Flags)
	if err != nil {
		return asyncmc.Item{}, err
	}
	return asyncmc.Item{Key: item.Key, Value: value, Flags: item.Flags, Found: true}, nil
}
