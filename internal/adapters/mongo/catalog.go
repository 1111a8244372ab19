package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type EventDoc struct {
	ID          string         `bson:"_id"`
	Name        string         `bson:"name"`
	Venue       string         `bson:"venue"`
	Date        time.Time      `bson:"date"`
	Currency    string         `bson:"currency"`
	BannerPaths []string       `bson:"banner_paths"`
	RateClasses []RateClassDoc `bson:"rate_classes"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

// RateClassDoc keeps the price as a decimal string so it never passes
// through a float.
type RateClassDoc struct {
	ID         string `bson:"id"`
	TicketType string `bson:"ticket_type"`
	UnitPrice  string `bson:"unit_price"`
	MinimumQty int    `bson:"minimum_qty"`
}

// ListEvents returns events dated at or after from, soonest first.
func (c *CatalogRepository) ListEvents(ctx context.Context, from time.Time) ([]domain.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})
	cur, err := c.coll.Find(ctx, bson.M{"date": bson.M{"$gte": from}}, opts)
	if err != nil {
		c.logger.WithError(err).Error("failed to list events")
		return nil, domain.Unavailable(err, "list events")
	}
	defer cur.Close(ctx)

	var docs []EventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.Unavailable(err, "decode events")
	}
	events := make([]domain.Event, 0, len(docs))
	for _, d := range docs {
		ev, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, nil
}

func (c *CatalogRepository) Event(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var doc EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFoundf("event %s not found", id)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to get event")
		return nil, domain.Unavailable(err, "get event")
	}
	return doc.toDomain()
}

// RateClass resolves classID within the event. uuid.Nil selects the event's
// first class.
func (c *CatalogRepository) RateClass(ctx context.Context, eventID, classID uuid.UUID) (*domain.RateClass, error) {
	ev, err := c.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return PickRateClass(ev, classID)
}

func PickRateClass(ev *domain.Event, classID uuid.UUID) (*domain.RateClass, error) {
	for i := range ev.RateClasses {
		rc := ev.RateClasses[i]
		if classID == uuid.Nil || rc.ID == classID {
			return &rc, nil
		}
	}
	return nil, domain.NotFoundf("rate class %s not found for event %s", classID, ev.ID)
}

func (c *CatalogRepository) CreateEvent(ctx context.Context, event EventDoc) error {
	event.CreatedAt = time.Now()
	event.UpdatedAt = time.Now()
	_, err := c.coll.InsertOne(ctx, event)
	if err != nil {
		c.logger.WithError(err).Error("failed to create event")
		return err
	}
	return nil
}

func (d EventDoc) toDomain() (*domain.Event, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "event id %q", d.ID)
	}
	ev := &domain.Event{
		ID:          id,
		Name:        d.Name,
		Venue:       d.Venue,
		Date:        d.Date,
		Currency:    d.Currency,
		BannerPaths: d.BannerPaths,
	}
	for _, rc := range d.RateClasses {
		rcID, err := uuid.Parse(rc.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "rate class id %q", rc.ID)
		}
		price, err := decimal.NewFromString(rc.UnitPrice)
		if err != nil {
			return nil, errors.Wrapf(err, "rate class %s price", rc.ID)
		}
		ev.RateClasses = append(ev.RateClasses, domain.RateClass{
			ID:         rcID,
			EventID:    id,
			TicketType: rc.TicketType,
			UnitPrice:  price,
			MinimumQty: rc.MinimumQty,
		})
	}
	return ev, nil
}

// DocFromEvent is the inverse of toDomain; seeding and tests use it.
func DocFromEvent(ev domain.Event) EventDoc {
	doc := EventDoc{
		ID:          ev.ID.String(),
		Name:        ev.Name,
		Venue:       ev.Venue,
		Date:        ev.Date,
		Currency:    ev.Currency,
		BannerPaths: ev.BannerPaths,
	}
	for _, rc := range ev.RateClasses {
		doc.RateClasses = append(doc.RateClasses, RateClassDoc{
			ID:         rc.ID.String(),
			TicketType: rc.TicketType,
			UnitPrice:  rc.UnitPrice.String(),
			MinimumQty: rc.MinimumQty,
		})
	}
	return doc
}
