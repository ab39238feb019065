package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"papertrade/config"
	"papertrade/model"
)

// MongoStore keeps one collection per record type.
type MongoStore struct {
	client    *mongo.Client
	users     *mongo.Collection
	holdings  *mongo.Collection
	watchlist *mongo.Collection
	alerts    *mongo.Collection
	logger    *zap.Logger
}

func OpenMongo(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	logger = logger.Named("mongo")

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxPoolSize(cfg.MaxPoolSize)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping mongodb")
	}

	s := NewMongoStore(client, cfg.Database, logger)
	if err := s.EnsureIndexes(connectCtx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("Successfully connected to database", zap.String("database", cfg.Database))
	return s, nil
}

func NewMongoStore(client *mongo.Client, database string, logger *zap.Logger) *MongoStore {
	d := client.Database(database)
	return &MongoStore{
		client:    client,
		users:     d.Collection("users"),
		holdings:  d.Collection("holdings"),
		watchlist: d.Collection("watchlist"),
		alerts:    d.Collection("alerts"),
		logger:    logger,
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.users, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique}},
		{s.holdings, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "symbol", Value: 1}}, Options: unique}},
		{s.watchlist, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "symbol", Value: 1}}, Options: unique}},
		{s.alerts, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}}},
	}
	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateOne(ctx, ix.model); err != nil {
			return errors.Wrapf(err, "failed to create index on %s", ix.coll.Name())
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *MongoStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "failed to insert user")
}

func (s *MongoStore) UserByID(ctx context.Context, id string) (model.User, error) {
	var u model.User
	err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err = notFound(err); err == ErrNotFound {
		return u, err
	}
	return u, errors.Wrap(err, "failed to find user")
}

func (s *MongoStore) UserByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err = notFound(err); err == ErrNotFound {
		return u, err
	}
	return u, errors.Wrap(err, "failed to find user")
}

func (s *MongoStore) Holdings(ctx context.Context, userID string) ([]model.Holding, error) {
	out := []model.Holding{}
	cur, err := s.holdings.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "purchaseDate", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query holdings")
	}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "failed to decode holdings")
	}
	return out, nil
}

func (s *MongoStore) Holding(ctx context.Context, userID, symbol string) (model.Holding, error) {
	var h model.Holding
	err := s.holdings.FindOne(ctx, bson.M{"userId": userID, "symbol": symbol}).Decode(&h)
	if err = notFound(err); err == ErrNotFound {
		return h, err
	}
	return h, errors.Wrap(err, "failed to find holding")
}

// CommitTrade writes the balance then the holding. Standalone deployments
// have no multi-document transactions, so the two writes are sequential.
func (s *MongoStore) CommitTrade(ctx context.Context, userID string, balance float64, h model.Holding, remove bool) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"balance": balance}})
	if err != nil {
		return errors.Wrap(err, "failed to update balance")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}

	if remove {
		_, err = s.holdings.DeleteOne(ctx, bson.M{"_id": h.ID, "userId": userID})
	} else {
		h.UserID = userID
		_, err = s.holdings.ReplaceOne(ctx, bson.M{"_id": h.ID}, h, options.Replace().SetUpsert(true))
	}
	return errors.Wrap(err, "failed to write holding")
}

func (s *MongoStore) Watchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error) {
	out := []model.WatchlistEntry{}
	cur, err := s.watchlist.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "addedAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query watchlist")
	}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "failed to decode watchlist")
	}
	return out, nil
}

func (s *MongoStore) AddWatchlist(ctx context.Context, e *model.WatchlistEntry) error {
	_, err := s.watchlist.InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "failed to insert watchlist entry")
}

func (s *MongoStore) RemoveWatchlist(ctx context.Context, userID, symbol string) error {
	res, err := s.watchlist.DeleteOne(ctx, bson.M{"userId": userID, "symbol": symbol})
	if err != nil {
		return errors.Wrap(err, "failed to delete watchlist entry")
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) InWatchlist(ctx context.Context, userID, symbol string) (bool, error) {
	n, err := s.watchlist.CountDocuments(ctx, bson.M{"userId": userID, "symbol": symbol})
	return n > 0, errors.Wrap(err, "failed to check watchlist")
}

func (s *MongoStore) Alerts(ctx context.Context, userID string) ([]model.Alert, error) {
	out := []model.Alert{}
	cur, err := s.alerts.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "failed to decode alerts")
	}
	return out, nil
}

func (s *MongoStore) CreateAlert(ctx context.Context, a *model.Alert) error {
	_, err := s.alerts.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "failed to insert alert")
}

func (s *MongoStore) UpdateAlert(ctx context.Context, userID, id string, patch AlertPatch) (model.Alert, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.IsActive != nil {
		set["isActive"] = *patch.IsActive
	}
	if patch.Triggered != nil {
		set["triggered"] = *patch.Triggered
	}

	var a model.Alert
	err := s.alerts.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "userId": userID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)
	if err = notFound(err); err == ErrNotFound {
		return a, err
	}
	return a, errors.Wrap(err, "failed to update alert")
}

func (s *MongoStore) DeleteAlert(ctx context.Context, userID, id string) error {
	res, err := s.alerts.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return errors.Wrap(err, "failed to delete alert")
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) CountActiveAlerts(ctx context.Context, userID string) (int, error) {
	n, err := s.alerts.CountDocuments(ctx, bson.M{"userId": userID, "isActive": true, "triggered": false})
	return int(n), errors.Wrap(err, "failed to count alerts")
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
