// Package redis provides the connection handle for the Redis-backed job
// storage. It wraps the go-redis client with a retrying Connect helper and
// a health-check probe.
//
// The connection is constructed explicitly and passed to the storage at
// construction time; nothing in this repository keeps a global client.
//
//	cfg := redis.Config{ConnectionURL: "redis://localhost:6379/0", RetryAttempts: 3,
//		RetryInterval: 5 * time.Second, ConnectTimeout: 30 * time.Second}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		// handle error, most likely terminate the application
//	}
//	defer client.Close()
package redis
