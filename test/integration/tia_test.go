package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/mongo"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/ticket-issuance-and-admission/internal/adapters/redis"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/admission"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/artifact"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/catalog"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/credential"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/gateway"
	httphandler "github.com/robertarktes/ticket-issuance-and-admission/internal/http"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/idempotency"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/issuance"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/notify"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/operator"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/outbox"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/rateLimit"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return host + ":" + mapped.Port()
}

func postJSON(t *testing.T, url, idemKey string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	header := http.Header{}
	if idemKey != "" {
		header.Set("Idempotency-Key", idemKey)
	}
	return post(t, url, header, body)
}

func scan(t *testing.T, url, token, payload string) map[string]interface{} {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	resp, out := post(t, url+"/v1/admissions", header, map[string]string{"payload": payload})
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", out)
	return out
}

func post(t *testing.T, url string, header http.Header, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header = header
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func receive(t *testing.T, ch <-chan amqp.Delivery) amqp.Delivery {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack(false)
		return msg
	case <-time.After(15 * time.Second):
		t.Fatal("no message received")
	}
	return amqp.Delivery{}
}

func TestIntegration_PurchaseConfirmAdmit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	crdbAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	}, "26257")
	mongoAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	}, "27017")
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
	}, "6379")
	rabbitAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete"),
	}, "5672")

	logger := observability.NewNopLogger()

	pool, err := pgxpool.New(ctx, "postgresql://root@"+crdbAddr+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoAddr))
	require.NoError(t, err)
	defer mongoClient.Disconnect(ctx)
	mongoDB := mongoClient.Database("tia")
	mongoCatalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)

	rabbitConn, err := amqp.Dial("amqp://guest:guest@" + rabbitAddr + "/")
	require.NoError(t, err)
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	require.NoError(t, err)
	notifications, err := rabbit.NewConsumer(rabbitConn, "test.notifications", notify.RoutingKey)
	require.NoError(t, err)
	notificationCh, err := notifications.Consume(ctx)
	require.NoError(t, err)
	events, err := rabbit.NewConsumer(rabbitConn, "test.events", "tickets.issued", "ticket.admitted")
	require.NoError(t, err)
	eventCh, err := events.Consume(ctx)
	require.NoError(t, err)

	ev := domain.Event{
		ID:       uuid.New(),
		Name:     "Integration Gala",
		Venue:    "Main Hall",
		Date:     time.Now().Add(72 * time.Hour).UTC().Truncate(time.Millisecond),
		Currency: "INR",
		RateClasses: []domain.RateClass{
			{ID: uuid.New(), TicketType: "Regular", UnitPrice: decimal.NewFromInt(500), MinimumQty: 1},
		},
	}
	require.NoError(t, mongoCatalog.CreateEvent(ctx, mongoadapter.DocFromEvent(ev)))
	gateHash, err := bcrypt.GenerateFromPassword([]byte("gate-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, mongoadapter.NewOperatorRepository(mongoDB, logger).SaveOperator(ctx, domain.ScannerOperator{
		Username: "gate1", PasswordHash: string(gateHash), Active: true,
	}))

	codec, err := credential.NewCodec([]byte("integration-secret-0123456789"))
	require.NoError(t, err)
	renderer, err := artifact.NewPDFRenderer(t.TempDir())
	require.NoError(t, err)
	cat := catalog.NewCached(mongoCatalog, redisCache, time.Minute, logger)

	svc := issuance.NewService(issuance.Deps{
		Ledger:     repo,
		Catalog:    cat,
		Fresh:      mongoCatalog,
		Gateway:    &gateway.Fake{},
		Codec:      codec,
		Renderer:   renderer,
		Dispatcher: notify.NewQueueDispatcher(rabbitPub, logger),
		Auditor:    audit,
		Currency:   "INR",
		Logger:     logger,
	})
	validator := admission.NewValidator(repo, codec, audit, logger)
	handlers := httphandler.NewHandlers(svc, validator, cat, map[string]httphandler.Pinger{"ledger": repo, "redis": redisCache}, logger)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, httphandler.RouterOptions{
		Idempotency:     idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour),
		Limiter:         rateLimit.NewRateLimiter(redisCache),
		RateLimitPerMin: 1000,
		ScanRateLimit:   1000,
		ScannerAuth: operator.NewAuthenticator(
			mongoadapter.NewOperatorRepository(mongoDB, logger),
			redisadapter.NewSessions(redisClient),
			time.Hour,
		),
	}))
	defer srv.Close()

	resp, created := postJSON(t, srv.URL+"/v1/intents", uuid.NewString(), map[string]interface{}{
		"event_id":   ev.ID,
		"buyer":      map[string]string{"name": "Asha", "mobile_no": "9876543210", "email": "asha@example.com"},
		"unit_count": 3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "%v", created)
	assert.Equal(t, "1500.00", created["total_amount"])
	intentID := uuid.MustParse(created["intent_id"].(string))

	resp, confirmed := postJSON(t, srv.URL+"/v1/intents/"+intentID.String()+"/confirm", "", map[string]string{"payment_token": "pay_integration"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", confirmed)
	assert.Equal(t, "ISSUED", confirmed["status"])

	_, again := postJSON(t, srv.URL+"/v1/intents/"+intentID.String()+"/confirm", "", map[string]string{"payment_token": "pay_integration"})
	assert.Equal(t, "ALREADY_PROCESSED", again["status"])

	units, err := repo.ListUnits(ctx, intentID)
	require.NoError(t, err)
	require.Len(t, units, 3)

	msg := receive(t, notificationCh)
	delivery, err := notify.DecodeDelivery(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, intentID, delivery.IntentID)
	assert.Len(t, delivery.Units, 3)

	resp, _ = postJSON(t, srv.URL+"/v1/admissions", "", map[string]string{"payload": units[1].Credential})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, login := postJSON(t, srv.URL+"/v1/scanner/login", "", map[string]string{"username": "gate1", "password": "gate-pass"})
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", login)
	token := login["token"].(string)

	assert.Equal(t, "ADMITTED", scan(t, srv.URL, token, units[1].Credential)["status"])
	assert.Equal(t, "ALREADY_ADMITTED", scan(t, srv.URL, token, units[1].Credential)["status"])
	assert.Equal(t, "INVALID_CREDENTIAL", scan(t, srv.URL, token, "garbage")["status"])

	audits := mongoDB.Collection("audit_logs")
	issuedDocs, err := audits.CountDocuments(ctx, bson.M{"intent_id": intentID.String(), "action": "tickets.issued"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, issuedDocs)
	scanDocs, err := audits.CountDocuments(ctx, bson.M{"intent_id": intentID.String(), "action": "ticket.scanned"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, scanDocs)

	published, err := outbox.NewPublisher(repo, rabbitPub, 10, logger).PublishBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	types := map[string]bool{}
	types[receive(t, eventCh).Type] = true
	types[receive(t, eventCh).Type] = true
	assert.True(t, types["tickets.issued"])
	assert.True(t, types["ticket.admitted"])
}
