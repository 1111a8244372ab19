package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OperatorRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewOperatorRepository(db *mongo.Database, logger observability.Logger) *OperatorRepository {
	return &OperatorRepository{
		coll:   db.Collection("scanner_operators"),
		logger: logger,
	}
}

type OperatorDoc struct {
	Username     string    `bson:"_id"`
	PasswordHash string    `bson:"password_hash"`
	Active       bool      `bson:"active"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// FindOperator returns nil without an error when username is unknown.
func (r *OperatorRepository) FindOperator(ctx context.Context, username string) (*domain.ScannerOperator, error) {
	var doc OperatorDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("failed to load scanner operator")
		return nil, err
	}
	return &domain.ScannerOperator{Username: doc.Username, PasswordHash: doc.PasswordHash, Active: doc.Active}, nil
}

// SaveOperator creates or replaces an operator record.
func (r *OperatorRepository) SaveOperator(ctx context.Context, op domain.ScannerOperator) error {
	doc := OperatorDoc{
		Username:     op.Username,
		PasswordHash: op.PasswordHash,
		Active:       op.Active,
		UpdatedAt:    time.Now().UTC(),
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": op.Username}, doc, options.Replace().SetUpsert(true))
	return err
}
