package repo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
)

const usersCollection = "users"

type userDocument struct {
	ID            bson.ObjectID          `bson:"_id,omitempty"`
	Name          string                 `bson:"name"`
	Email         string                 `bson:"email"`
	Phone         string                 `bson:"phone"`
	PasswordHash  string                 `bson:"passwordHash"`
	Role          string                 `bson:"role"`
	IsActive      bool                   `bson:"isActive"`
	LoginAttempts int                    `bson:"loginAttempts"`
	LockoutUntil  *time.Time             `bson:"lockoutUntil,omitempty"`
	LastLogin     *time.Time             `bson:"lastLogin,omitempty"`
	RefreshTokens []refreshTokenDocument `bson:"refreshTokens"`
	CreatedAt     time.Time              `bson:"createdAt"`
	UpdatedAt     time.Time              `bson:"updatedAt"`
}

type refreshTokenDocument struct {
	TokenID    string    `bson:"tokenId"`
	TokenHash  string    `bson:"tokenHash"`
	ExpiresAt  time.Time `bson:"expiresAt"`
	CreatedAt  time.Time `bson:"createdAt"`
	DeviceInfo string    `bson:"deviceInfo,omitempty"`
	IPAddress  string    `bson:"ipAddress,omitempty"`
}

func (d *userDocument) toModel() *models.User {
	u := &models.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		Phone:        d.Phone,
		PasswordHash: d.PasswordHash,
		Role:         models.Role(d.Role),
		IsActive:     d.IsActive,
		FailedLogins: d.LoginAttempts,
		LockoutUntil: d.LockoutUntil,
		LastLoginAt:  d.LastLogin,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, rt := range d.RefreshTokens {
		u.RefreshTokens = append(u.RefreshTokens, rt.toModel(u.ID))
	}
	return u
}

func (d refreshTokenDocument) toModel(userID string) models.RefreshToken {
	return models.RefreshToken{
		UserID:     userID,
		TokenID:    d.TokenID,
		TokenHash:  d.TokenHash,
		ExpiresAt:  d.ExpiresAt,
		CreatedAt:  d.CreatedAt,
		DeviceInfo: d.DeviceInfo,
		IPAddress:  d.IPAddress,
	}
}

func refreshTokenFromModel(rt models.RefreshToken) refreshTokenDocument {
	return refreshTokenDocument{
		TokenID:    rt.TokenID,
		TokenHash:  rt.TokenHash,
		ExpiresAt:  rt.ExpiresAt,
		CreatedAt:  rt.CreatedAt,
		DeviceInfo: rt.DeviceInfo,
		IPAddress:  rt.IPAddress,
	}
}

type MongoRepo struct {
	users *mongo.Collection
	now   func() time.Time
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{
		users: db.Collection(usersCollection),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// EnsureIndexes creates the unique email index that makes registration safe
// under concurrency.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "refreshTokens.tokenId", Value: 1}},
			Options: options.Index().SetName("refresh_token_id"),
		},
	})
	return err
}

func (r *MongoRepo) Ping(ctx context.Context) error {
	return r.users.Database().Client().Ping(ctx, nil)
}

func objectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, ErrUserNotFound
	}
	return oid, nil
}

func (r *MongoRepo) CreateUser(ctx context.Context, u *models.User) error {
	now := r.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	doc := userDocument{
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		PasswordHash:  u.PasswordHash,
		Role:          string(u.Role),
		IsActive:      u.IsActive,
		LoginAttempts: u.FailedLogins,
		LockoutUntil:  u.LockoutUntil,
		LastLogin:     u.LastLoginAt,
		RefreshTokens: []refreshTokenDocument{},
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
	for _, rt := range u.RefreshTokens {
		doc.RefreshTokens = append(doc.RefreshTokens, refreshTokenFromModel(rt))
	}

	res, err := r.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return err
	}
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		u.ID = oid.Hex()
	}
	return nil
}

func (r *MongoRepo) findOne(ctx context.Context, filter bson.D) (*models.User, error) {
	var doc userDocument
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *MongoRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (r *MongoRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (r *MongoRepo) ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	total, err := r.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit)).
		SetProjection(bson.D{{Key: "refreshTokens", Value: 0}})

	cur, err := r.users.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}

	users := make([]models.User, 0, len(docs))
	for i := range docs {
		users = append(users, *docs[i].toModel())
	}
	return users, total, nil
}

func (r *MongoRepo) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	set := bson.D{{Key: "updatedAt", Value: r.now()}}
	if upd.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *upd.Name})
	}
	if upd.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *upd.Email})
	}
	if upd.Phone != nil {
		set = append(set, bson.E{Key: "phone", Value: *upd.Phone})
	}
	if upd.Role != nil {
		set = append(set, bson.E{Key: "role", Value: string(*upd.Role)})
	}
	if upd.IsActive != nil {
		set = append(set, bson.E{Key: "isActive", Value: *upd.IsActive})
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDocument
	err = r.users.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *MongoRepo) DeleteUser(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MongoRepo) updateByID(ctx context.Context, id string, update bson.D) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MongoRepo) ResetLoginFailures(ctx context.Context, id string) error {
	return r.updateByID(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{{Key: "loginAttempts", Value: 0}, {Key: "updatedAt", Value: r.now()}}},
		{Key: "$unset", Value: bson.D{{Key: "lockoutUntil", Value: ""}}},
	})
}

func (r *MongoRepo) RecordLogin(ctx context.Context, id string, at time.Time) error {
	return r.updateByID(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "loginAttempts", Value: 0},
			{Key: "lastLogin", Value: at},
			{Key: "updatedAt", Value: r.now()},
		}},
		{Key: "$unset", Value: bson.D{{Key: "lockoutUntil", Value: ""}}},
	})
}

func (r *MongoRepo) IncrementLoginFailures(ctx context.Context, id string) (int, error) {
	oid, err := objectID(id)
	if err != nil {
		return 0, err
	}

	update := bson.D{
		{Key: "$inc", Value: bson.D{{Key: "loginAttempts", Value: 1}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: r.now()}}},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.D{{Key: "loginAttempts", Value: 1}})

	var doc userDocument
	if err := r.users.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return doc.LoginAttempts, nil
}

func (r *MongoRepo) LockUser(ctx context.Context, id string, until time.Time) error {
	return r.updateByID(ctx, id, bson.D{
		{Key: "$set", Value: bson.D{{Key: "lockoutUntil", Value: until}, {Key: "updatedAt", Value: r.now()}}},
	})
}

func (r *MongoRepo) ListRefreshTokens(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	u, err := r.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.RefreshTokens, nil
}

func (r *MongoRepo) AddRefreshToken(ctx context.Context, userID string, rt models.RefreshToken) error {
	// $pull and $push may not touch the same array in one update
	if err := r.updateByID(ctx, userID, bson.D{
		{Key: "$pull", Value: bson.D{{Key: "refreshTokens", Value: bson.D{
			{Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: rt.CreatedAt}}},
		}}}},
	}); err != nil {
		return err
	}
	return r.updateByID(ctx, userID, bson.D{
		{Key: "$push", Value: bson.D{{Key: "refreshTokens", Value: refreshTokenFromModel(rt)}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: r.now()}}},
	})
}

func (r *MongoRepo) RotateRefreshToken(ctx context.Context, userID, oldTokenID, oldHash string, next models.RefreshToken, now time.Time) error {
	oid, err := objectID(userID)
	if err != nil {
		return ErrRefreshTokenNotFound
	}

	filter := bson.D{
		{Key: "_id", Value: oid},
		{Key: "refreshTokens", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "tokenId", Value: oldTokenID},
			{Key: "tokenHash", Value: oldHash},
			{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: now}}},
		}}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "refreshTokens.$", Value: refreshTokenFromModel(next)},
			{Key: "updatedAt", Value: r.now()},
		}},
	}

	res, err := r.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

func (r *MongoRepo) RemoveRefreshToken(ctx context.Context, userID, tokenHash string) error {
	err := r.updateByID(ctx, userID, bson.D{
		{Key: "$pull", Value: bson.D{{Key: "refreshTokens", Value: bson.D{{Key: "tokenHash", Value: tokenHash}}}}},
	})
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	return err
}

func (r *MongoRepo) ClearRefreshTokens(ctx context.Context, userID string) error {
	err := r.updateByID(ctx, userID, bson.D{
		{Key: "$set", Value: bson.D{{Key: "refreshTokens", Value: bson.A{}}, {Key: "updatedAt", Value: r.now()}}},
	})
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	return err
}

func (r *MongoRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.updateByID(ctx, userID, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "passwordHash", Value: passwordHash},
			{Key: "refreshTokens", Value: bson.A{}},
			{Key: "updatedAt", Value: r.now()},
		}},
	})
}
