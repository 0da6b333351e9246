package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/realfinance/estate-api/internal/core/domain"
)

const (
	usersCollection = "users"
	rolesCollection = "roles"
)

// CredentialStore implements ports.CredentialStore on MongoDB. Role
// memberships are stored on the user document as role display names.
type CredentialStore struct {
	client *mongo.Client
	users  *mongo.Collection
	roles  *mongo.Collection
}

func NewCredentialStore(client *mongo.Client, db *mongo.Database) *CredentialStore {
	return &CredentialStore{
		client: client,
		users:  db.Collection(usersCollection),
		roles:  db.Collection(rolesCollection),
	}
}

type mongoUser struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	UserName        string             `bson:"user_name"`
	Email           string             `bson:"email"`
	NormalizedEmail string             `bson:"normalized_email"`
	PasswordHash    string             `bson:"password_hash"`
	Roles           []string           `bson:"roles"`
	CreatedAt       int64              `bson:"created_at"`
	UpdatedAt       int64              `bson:"updated_at"`
}

type mongoRole struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Name           string             `bson:"name"`
	NormalizedName string             `bson:"normalized_name"`
	CreatedAt      int64              `bson:"created_at"`
}

// EnsureIndexes creates the unique indexes that back email and role name
// uniqueness.
func (s *CredentialStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	unique := options.Index().SetUnique(true)
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "normalized_email", Value: 1}},
		Options: unique,
	}); err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	if _, err := s.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "normalized_name", Value: 1}},
		Options: unique,
	}); err != nil {
		return fmt.Errorf("roles index: %w", err)
	}
	return nil
}

func (s *CredentialStore) RoleExists(ctx context.Context, name string) (bool, error) {
	n, err := s.roles.CountDocuments(ctx,
		bson.M{"normalized_name": domain.NormalizeRoleName(name)},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count roles: %w", err)
	}
	return n > 0, nil
}

func (s *CredentialStore) CreateRole(ctx context.Context, name string) error {
	_, err := s.roles.InsertOne(ctx, mongoRole{
		Name:           strings.TrimSpace(name),
		NormalizedName: domain.NormalizeRoleName(name),
		CreatedAt:      time.Now().Unix(),
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrRoleExists
		}
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (s *CredentialStore) ListRoles(ctx context.Context) ([]domain.Role, error) {
	cur, err := s.roles.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find roles: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoRole
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}

	roles := make([]domain.Role, 0, len(docs))
	for _, d := range docs {
		roles = append(roles, domain.Role{
			ID:             d.ID.Hex(),
			Name:           d.Name,
			NormalizedName: d.NormalizedName,
			CreatedAt:      unixToTime(d.CreatedAt),
		})
	}
	return roles, nil
}

func (s *CredentialStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var mu mongoUser
	err := s.users.FindOne(ctx, bson.M{"normalized_email": domain.NormalizeEmail(email)}).Decode(&mu)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return mu.toDomain(), nil
}

func (s *CredentialStore) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	now := time.Now().UTC()
	email := strings.TrimSpace(user.Email)
	doc := mongoUser{
		UserName:        user.UserName,
		Email:           email,
		NormalizedEmail: domain.NormalizeEmail(email),
		PasswordHash:    user.PasswordHash,
		Roles:           []string{},
		CreatedAt:       now.Unix(),
		UpdatedAt:       now.Unix(),
	}
	if doc.UserName == "" {
		doc.UserName = email
	}

	res, err := s.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = id
	}
	return doc.toDomain(), nil
}

func (s *CredentialStore) AssignRole(ctx context.Context, userID, roleName string) error {
	var role mongoRole
	err := s.roles.FindOne(ctx, bson.M{"normalized_name": domain.NormalizeRoleName(roleName)}).Decode(&role)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrRoleNotFound
		}
		return fmt.Errorf("find role: %w", err)
	}

	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return domain.ErrUserNotFound
	}

	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$addToSet": bson.M{"roles": role.Name},
			"$set":      bson.M{"updated_at": time.Now().Unix()},
		})
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *CredentialStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return domain.ErrUserNotFound
	}

	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"password_hash": passwordHash, "updated_at": time.Now().Unix()}})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *CredentialStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (mu mongoUser) toDomain() *domain.User {
	roles := mu.Roles
	if roles == nil {
		roles = []string{}
	}
	return &domain.User{
		ID:              mu.ID.Hex(),
		UserName:        mu.UserName,
		Email:           mu.Email,
		NormalizedEmail: mu.NormalizedEmail,
		PasswordHash:    mu.PasswordHash,
		Roles:           roles,
		CreatedAt:       unixToTime(mu.CreatedAt),
		UpdatedAt:       unixToTime(mu.UpdatedAt),
	}
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
