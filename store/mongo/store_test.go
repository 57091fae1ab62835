//go:build integration

package mongo_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/processes"
	"github.com/xraph/processes/id"
	"github.com/xraph/processes/job"
	"github.com/xraph/processes/result"
	"github.com/xraph/processes/store"
	"github.com/xraph/processes/store/mongo"
	"github.com/xraph/processes/store/storetest"
)

// setupClient starts a single-node MongoDB replica set, which transactions
// require, and returns a client connected to its primary.
func setupClient(t *testing.T) *mongod.Client {
	t.Helper()

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			Cmd:          []string{"--replSet", "rs0", "--bind_ip_all", "--setParameter", "enableTestCommands=1"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	endpoint, err := container.Endpoint(ctx, "mongodb")
	if err != nil {
		t.Fatalf("get endpoint: %v", err)
	}

	client, err := mongod.Connect(options.Client().ApplyURI(endpoint + "/?directConnection=true"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	admin := client.Database("admin")
	initiate := bson.D{{Key: "replSetInitiate", Value: bson.M{
		"_id":     "rs0",
		"members": bson.A{bson.M{"_id": 0, "host": "localhost:27017"}},
	}}}
	if err := admin.RunCommand(ctx, initiate).Err(); err != nil {
		t.Fatalf("replSetInitiate: %v", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		var hello struct {
			IsWritablePrimary bool `bson:"isWritablePrimary"`
		}
		if err := admin.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err == nil && hello.IsWritablePrimary {
			return client
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("replica set has no primary")
	return nil
}

func TestConformance(t *testing.T) {
	client := setupClient(t)
	var n atomic.Int64

	storetest.Run(t, func(t *testing.T) store.Store {
		db := client.Database(fmt.Sprintf("processes_test_%d", n.Add(1)))
		s := mongo.New(db)
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}

func TestExpungeJob_FailedResultDeleteKeepsJob(t *testing.T) {
	ctx := context.Background()
	client := setupClient(t)
	s := mongo.New(client.Database("processes_test_expunge"))
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	j := storetest.NewJob("echo")
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	running := storetest.Claim(t, s, j, id.NewWorkerID(), time.Minute)
	if err := s.PutResults(ctx, j.ID, result.Outputs{"echo": "hi"}); err != nil {
		t.Fatalf("PutResults: %v", err)
	}
	storetest.Finish(t, s, running, job.StatusSuccessful, time.Now().UTC())

	failPoint := bson.D{
		{Key: "configureFailPoint", Value: "failCommand"},
		{Key: "mode", Value: bson.M{"times": 1}},
		{Key: "data", Value: bson.M{"failCommands": bson.A{"delete"}, "errorCode": 2}},
	}
	if err := client.Database("admin").RunCommand(ctx, failPoint).Err(); err != nil {
		t.Fatalf("configureFailPoint: %v", err)
	}

	if err := s.ExpungeJob(ctx, j.ID); err == nil {
		t.Fatal("ExpungeJob: expected error from failed results delete")
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob after aborted expunge: %v", err)
	}
	if got.Status != job.StatusSuccessful {
		t.Fatalf("status: got %s, want successful", got.Status)
	}
	if _, err := s.GetResults(ctx, j.ID); err != nil {
		t.Fatalf("GetResults after aborted expunge: %v", err)
	}

	if err := s.ExpungeJob(ctx, j.ID); err != nil {
		t.Fatalf("ExpungeJob retry: %v", err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, processes.ErrGone) {
		t.Fatalf("GetJob: got %v, want ErrGone", err)
	}
}
