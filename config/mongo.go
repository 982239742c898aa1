package config

import (
	"context"
	"crypto/tls"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var MongoClient *mongo.Client

// MongoOptions is the session store connection, taken from Config.
type MongoOptions struct {
	URI     string
	MaxPool uint64
	Timeout time.Duration // server selection and connect

	// ForceTLS12 pins TLS 1.2; some Atlas clusters reject Go's TLS 1.3
	// handshake. InsecureTLS additionally skips verification and is only
	// honoured together with ForceTLS12.
	ForceTLS12  bool
	InsecureTLS bool
}

func (c *Config) MongoOptions() MongoOptions {
	return MongoOptions{
		URI:         c.MongoURI,
		MaxPool:     c.MongoMaxPool,
		Timeout:     c.MongoTimeout,
		ForceTLS12:  c.MongoForceTLS12,
		InsecureTLS: c.MongoInsecureTLS,
	}
}

func (o MongoOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 20 * time.Second
	}
	return o.Timeout
}

func (o MongoOptions) clientOptions() *options.ClientOptions {
	timeout := o.timeout()
	maxPool := o.MaxPool
	if maxPool == 0 {
		maxPool = 10
	}
	opts := options.Client().ApplyURI(o.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout).
		SetMaxPoolSize(maxPool).
		SetMinPoolSize(1).
		SetAppName("veriview")
	if o.ForceTLS12 {
		opts = opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: o.InsecureTLS,
			MinVersion:         tls.VersionTLS12,
			MaxVersion:         tls.VersionTLS12,
		})
	}
	return opts
}

// InitMongo connects and pings the session store.
func InitMongo(ctx context.Context, o MongoOptions) error {
	if o.URI == "" {
		return errors.New("mongo uri is not set")
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout()+10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, o.clientOptions())
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}

	MongoClient = client
	return nil
}
