package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sbilibin2017/gw-user-signup/internal/logger"
	"github.com/sbilibin2017/gw-user-signup/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// NewMongoClient creates a pooled MongoDB client. The driver connects lazily,
// so an unreachable server surfaces on the first Ping rather than here.
// timeout bounds connect, server selection and socket operations.
func NewMongoClient(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout).
		SetSocketTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		logger.Log.Errorw("MongoDB connection error", "uri", MaskURI(uri), "err", err)
		return nil, err
	}
	return client, nil
}

// userDocument is the BSON shape of a user record.
type userDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	FirstName string             `bson:"first_name"`
	LastName  string             `bson:"last_name"`
	CreatedAt time.Time          `bson:"created_at"`
	IsActive  bool               `bson:"is_active"`
}

func (d *userDocument) toModel() *models.UserDB {
	return &models.UserDB{
		UserID:    d.ID.Hex(),
		Username:  d.Username,
		Email:     d.Email,
		Password:  d.Password,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		CreatedAt: d.CreatedAt.UTC(),
		IsActive:  d.IsActive,
	}
}

// MongoUserRepository stores users in a MongoDB collection.
type MongoUserRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoUserRepository returns a repository backed by dbName.collection.
func NewMongoUserRepository(client *mongo.Client, dbName, collection string) *MongoUserRepository {
	return &MongoUserRepository{
		client: client,
		coll:   client.Database(dbName).Collection(collection),
	}
}

// Name returns the display name of the store.
func (r *MongoUserRepository) Name() string {
	return "MongoDB"
}

// Ping checks that the primary is reachable.
func (r *MongoUserRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates lookup indexes on username and email.
// The indexes are not unique: duplicates are rejected by the signup flow only.
func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	})
	return err
}

// GetByUsernameOrEmail returns the first user whose username or email matches, or nil.
func (r *MongoUserRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (*models.UserDB, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"email": email},
		bson.M{"username": username},
	}}

	var doc userDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)

	logger.Log.Debugw("find_one",
		"collection", r.coll.Name(),
		"filter", filter,
		"error", err,
	)

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// Save inserts user and returns the hex ObjectID assigned by the server.
func (r *MongoUserRepository) Save(ctx context.Context, user *models.UserDB) (string, error) {
	doc := userDocument{
		Username:  user.Username,
		Email:     user.Email,
		Password:  user.Password,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		CreatedAt: user.CreatedAt,
		IsActive:  user.IsActive,
	}

	res, err := r.coll.InsertOne(ctx, doc)

	logger.Log.Debugw("insert_one",
		"collection", r.coll.Name(),
		"username", user.Username,
		"error", err,
	)

	if err != nil {
		return "", err
	}

	switch id := res.InsertedID.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	default:
		return fmt.Sprint(id), nil
	}
}
