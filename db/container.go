package db

import (
	"context"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

// StartMongoContainer starts a disposable MongoDB container for tests.
// The container runs as a single-node replica set so that multi-document
// transactions are available, exactly as in production deployments.
func StartMongoContainer(ctx context.Context) (*mongodb.MongoDBContainer, error) {
	return mongodb.Run(ctx, "mongo:7",
		mongodb.WithReplicaSet("rs0"),
	)
}
