// Package mongo implements store.Store on the official MongoDB driver.
// Suitable for distributed deployments requiring horizontal scaling and
// flexible schema evolution.
//
// State transitions are single-document writes filtered on _id, status and
// version, so they are atomic without multi-document transactions.
// Expunging replaces the job document with a tombstone in one write.
//
// The caller owns the client lifecycle; mongo never closes it:
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	store := mongo.New(client.Database("processes"))
//	store.Migrate(ctx)
package mongo
