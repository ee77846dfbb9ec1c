package mongodb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

// Collection names.
const (
	CredentialsCollection = "provider_credentials"
	DevicesCollection     = "connected_devices"
	SessionsCollection    = "user_sessions"
)

var (
	clientInstance *mongo.Client
	clientOnce     sync.Once
	dbInstance     *mongo.Database
	dbOnce         sync.Once
)

// Init initializes the MongoDB client and database. Call once at startup.
func Init(ctx context.Context, uri, dbName string) error {
	var err error
	clientOnce.Do(func() {
		clientOptions := options.Client().ApplyURI(uri)
		clientOptions.SetConnectTimeout(10 * time.Second)
		clientOptions.SetMonitor(otelmongo.NewMonitor())

		client, clientErr := mongo.Connect(clientOptions)
		if clientErr != nil {
			err = clientErr
			return
		}
		if pingErr := client.Ping(ctx, readpref.Primary()); pingErr != nil {
			err = pingErr
			return
		}
		clientInstance = client
		log.Info().Str("db", dbName).Msg("mongodb client initialized")
	})
	if err != nil {
		return err
	}
	dbOnce.Do(func() {
		dbInstance = clientInstance.Database(dbName)
	})
	return nil
}

// DB returns the initialized database handle.
func DB() (*mongo.Database, error) {
	if dbInstance == nil {
		return nil, errors.New("mongodb not initialized, call Init first")
	}
	return dbInstance, nil
}

// Disconnect closes the client connection.
func Disconnect(ctx context.Context) error {
	if clientInstance == nil {
		return nil
	}
	return clientInstance.Disconnect(ctx)
}
