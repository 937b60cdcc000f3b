package repository

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/darim/darim/internal/apperr"
	"github.com/darim/darim/internal/models"
)

// UserRepository is the user directory, backed by a single DynamoDB table.
// Users live under USER#<email>; a small pointer item under USERID#<id> maps
// the numeric id back to the email for lookups by id.
type UserRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewUserRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	probe := &models.User{Email: email}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: probe.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: probe.GetSK()},
		},
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("%w: failed to get user: %v", apperr.ErrStoreUnavailable, err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
	}

	var user models.User
	if err := attributevalue.UnmarshalMap(result.Item, &user); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("%w: failed to unmarshal user: %v", apperr.ErrInvalidFormat, err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uint64) (*models.User, error) {
	probe := &models.User{ID: id}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: probe.GetIDPK()},
			"SK": &types.AttributeValueMemberS{Value: "POINTER"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get user pointer: %v", apperr.ErrStoreUnavailable, err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%w: user %d", apperr.ErrNotFound, id)
	}

	emailAttr, ok := result.Item["email"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("%w: user pointer missing email", apperr.ErrInvalidFormat)
	}
	return r.GetByEmail(ctx, emailAttr.Value)
}

// FindPasswordDigestByEmail returns only the stored password digest.
func (r *UserRepository) FindPasswordDigestByEmail(ctx context.Context, email string) (string, error) {
	user, err := r.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return user.PasswordDigest, nil
}

// Create inserts the user and its id pointer item. The email is the primary
// key; a duplicate email fails with ErrDuplicatedKey.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.ID == 0 {
		id, err := randomID()
		if err != nil {
			return fmt.Errorf("%w: failed to generate user id: %v", apperr.ErrInternal, err)
		}
		user.ID = id
	}

	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal user for DynamoDB")
		return fmt.Errorf("%w: failed to marshal user: %v", apperr.ErrInvalidFormat, err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: user.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: user.GetSK()}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return fmt.Errorf("%w: user %s", apperr.ErrDuplicatedKey, user.Email)
		}
		r.logger.WithError(err).Error("Failed to create user in DynamoDB")
		return fmt.Errorf("%w: failed to create user: %v", apperr.ErrStoreUnavailable, err)
	}

	pointer := map[string]types.AttributeValue{
		"PK":    &types.AttributeValueMemberS{Value: user.GetIDPK()},
		"SK":    &types.AttributeValueMemberS{Value: "POINTER"},
		"email": &types.AttributeValueMemberS{Value: user.Email},
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      pointer,
	}); err != nil {
		r.logger.WithError(err).Error("Failed to create user id pointer in DynamoDB")
		return fmt.Errorf("%w: failed to create user pointer: %v", apperr.ErrStoreUnavailable, err)
	}

	return nil
}

// UpdatePassword replaces the stored password digest of the user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id uint64, digest string) error {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: user.GetPK()},
			"SK": &types.AttributeValueMemberS{Value: user.GetSK()},
		},
		UpdateExpression: aws.String("SET password_digest = :digest, updated_at = :updated_at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":digest":     &types.AttributeValueMemberS{Value: digest},
			":updated_at": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339)},
		},
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to update password in DynamoDB")
		return fmt.Errorf("%w: failed to update password: %v", apperr.ErrStoreUnavailable, err)
	}
	return nil
}

func randomID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	id := binary.BigEndian.Uint64(buf[:])
	if id == 0 {
		id = 1
	}
	return id, nil
}
