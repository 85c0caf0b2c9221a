package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"inventory-saga/internal/models"
	"inventory-saga/internal/repository"
)

// fakeTxManager runs the transactional function directly with a nil tx. The
// service only threads the tx through to repository calls, so mocks accept
// it without a live database.
type fakeTxManager struct {
	beginErr error
}

func (f *fakeTxManager) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	return fn(nil)
}

type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) GetItem(ctx context.Context, productID string) (*models.InventoryItem, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryItem), args.Error(1)
}

func (m *MockInventoryRepository) GetItemForUpdate(ctx context.Context, tx *sqlx.Tx, productID string) (*models.InventoryItem, error) {
	args := m.Called(ctx, tx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryItem), args.Error(1)
}

func (m *MockInventoryRepository) UpdateQuantities(ctx context.Context, tx *sqlx.Tx, item *models.InventoryItem) error {
	args := m.Called(ctx, tx, item)
	return args.Error(0)
}

func (m *MockInventoryRepository) UpsertItem(ctx context.Context, item *models.InventoryItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockInventoryRepository) GetReservations(ctx context.Context, orderID string) ([]models.Reservation, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}

func (m *MockInventoryRepository) GetReservationsForUpdate(ctx context.Context, tx *sqlx.Tx, orderID string) ([]models.Reservation, error) {
	args := m.Called(ctx, tx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reservation), args.Error(1)
}

func (m *MockInventoryRepository) CreateReservation(ctx context.Context, tx *sqlx.Tx, reservation *models.Reservation) error {
	args := m.Called(ctx, tx, reservation)
	return args.Error(0)
}

func (m *MockInventoryRepository) DeleteReservations(ctx context.Context, tx *sqlx.Tx, orderID string) (int64, error) {
	args := m.Called(ctx, tx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) InsertEvent(ctx context.Context, tx *sqlx.Tx, eventType, key string, payload interface{}) error {
	args := m.Called(ctx, tx, eventType, key, payload)
	return args.Error(0)
}

func (m *MockOutboxRepository) FetchUnprocessed(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, ids []int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementRetry(ctx context.Context, id int64, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

func (m *MockOutboxRepository) TryAcquireRelayLock(ctx context.Context, lockKey int64) (bool, error) {
	args := m.Called(ctx, lockKey)
	return args.Bool(0), args.Error(1)
}

func (m *MockOutboxRepository) ReleaseRelayLock(ctx context.Context, lockKey int64) error {
	args := m.Called(ctx, lockKey)
	return args.Error(0)
}

type MockCacheRepository struct {
	mock.Mock
}

func (m *MockCacheRepository) GetItem(ctx context.Context, productID string) (*models.InventoryItem, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryItem), args.Error(1)
}

func (m *MockCacheRepository) SetItem(ctx context.Context, item *models.InventoryItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockCacheRepository) DeleteItem(ctx context.Context, productID string) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

func (m *MockCacheRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func reservedPayload(success bool) interface{} {
	return mock.MatchedBy(func(payload interface{}) bool {
		event, ok := payload.(models.InventoryReserved)
		return ok && event.Success == success
	})
}

func compensatedPayload(success bool) interface{} {
	return mock.MatchedBy(func(payload interface{}) bool {
		event, ok := payload.(models.InventoryCompensated)
		return ok && event.Success == success
	})
}

func TestSagaService_HandleReserve_Success(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)
	mockCache := new(MockCacheRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, mockCache)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items: []models.OrderItem{
			{ProductID: "P1", Qty: 4},
			{ProductID: "P2", Qty: 2},
		},
	}

	item1 := &models.InventoryItem{ProductID: "P1", AvailableQty: 10, ReservedQty: 0}
	item2 := &models.InventoryItem{ProductID: "P2", AvailableQty: 5, ReservedQty: 1}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return([]models.Reservation{}, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "P1").Return(item1, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "P2").Return(item2, nil)
	mockRepo.On("UpdateQuantities", mock.Anything, mock.Anything, item1).Return(nil)
	mockRepo.On("UpdateQuantities", mock.Anything, mock.Anything, item2).Return(nil)
	mockRepo.On("CreateReservation", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(true)).Return(nil)
	// Cache invalidation happens asynchronously in a goroutine
	mockCache.On("DeleteItem", mock.Anything, mock.Anything).Return(nil).Maybe()

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 6, item1.AvailableQty)
	assert.Equal(t, 4, item1.ReservedQty)
	assert.Equal(t, 3, item2.AvailableQty)
	assert.Equal(t, 3, item2.ReservedQty)
	mockRepo.AssertExpectations(t)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleReserve_DuplicateOrder(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items:         []models.OrderItem{{ProductID: "P1", Qty: 4}},
	}

	existing := []models.Reservation{
		{ReservationID: uuid.New(), OrderID: "order-1", ProductID: "P1", Qty: 4, CreatedAt: time.Now()},
	}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return(existing, nil)
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(true)).Return(nil)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert: duplicate replays success without touching the ledger
	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "GetItemForUpdate", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "UpdateQuantities", mock.Anything, mock.Anything, mock.Anything)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleReserve_InsufficientStock(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items:         []models.OrderItem{{ProductID: "P1", Qty: 8}},
	}

	item := &models.InventoryItem{ProductID: "P1", AvailableQty: 3, ReservedQty: 0}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return([]models.Reservation{}, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "P1").Return(item, nil)
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(false)).Return(nil)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert: rejection is a recorded outcome, not an error, and the
	// ledger stays untouched
	assert.NoError(t, err)
	assert.Equal(t, 3, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)
	mockRepo.AssertNotCalled(t, "UpdateQuantities", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything, mock.Anything)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleReserve_ProductNotFound(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items:         []models.OrderItem{{ProductID: "UNKNOWN", Qty: 1}},
	}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return([]models.Reservation{}, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "UNKNOWN").Return(nil, nil)
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(false)).Return(nil)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert
	assert.NoError(t, err)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleReserve_InvalidCommand(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items:         []models.OrderItem{{ProductID: "P1", Qty: -2}},
	}

	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(false)).Return(nil)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert: rejected before any transaction is opened
	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "GetReservationsForUpdate", mock.Anything, mock.Anything, mock.Anything)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleReserve_RepeatedProductAggregated(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items: []models.OrderItem{
			{ProductID: "P1", Qty: 3},
			{ProductID: "P1", Qty: 4},
		},
	}

	item := &models.InventoryItem{ProductID: "P1", AvailableQty: 10, ReservedQty: 0}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return([]models.Reservation{}, nil)
	// The repeated product is read and written exactly once
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "P1").Return(item, nil).Once()
	mockRepo.On("UpdateQuantities", mock.Anything, mock.Anything, item).Return(nil).Once()
	mockRepo.On("CreateReservation", mock.Anything, mock.Anything, mock.MatchedBy(func(r *models.Reservation) bool {
		return r.ProductID == "P1" && r.Qty == 7
	})).Return(nil).Once()
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(true)).Return(nil)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert: both lines land on one ledger move and one journal row
	assert.NoError(t, err)
	assert.Equal(t, 3, item.AvailableQty)
	assert.Equal(t, 7, item.ReservedQty)
	mockRepo.AssertExpectations(t)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleReserve_RepeatedProductExceedsStock(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items: []models.OrderItem{
			{ProductID: "P1", Qty: 6},
			{ProductID: "P1", Qty: 6},
		},
	}

	item := &models.InventoryItem{ProductID: "P1", AvailableQty: 10, ReservedQty: 0}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return([]models.Reservation{}, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "P1").Return(item, nil).Once()
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(false)).Return(nil)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert: the combined quantity is checked once and rejected, the
	// ledger stays untouched and no journal row is attempted
	assert.NoError(t, err)
	assert.Equal(t, 10, item.AvailableQty)
	assert.Equal(t, 0, item.ReservedQty)
	mockRepo.AssertNotCalled(t, "UpdateQuantities", mock.Anything, mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "CreateReservation", mock.Anything, mock.Anything, mock.Anything)
	mockOutbox.AssertExpectations(t)
}

func TestMergeOrderItems(t *testing.T) {
	merged := mergeOrderItems([]models.OrderItem{
		{ProductID: "P1", Qty: 3},
		{ProductID: "P2", Qty: 1},
		{ProductID: "P1", Qty: 4},
	})

	assert.Equal(t, []models.OrderItem{
		{ProductID: "P1", Qty: 7},
		{ProductID: "P2", Qty: 1},
	}, merged)
}

func TestSagaService_HandleReserve_InsertRace(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items:         []models.OrderItem{{ProductID: "P1", Qty: 4}},
	}

	item := &models.InventoryItem{ProductID: "P1", AvailableQty: 10, ReservedQty: 0}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return([]models.Reservation{}, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "P1").Return(item, nil)
	mockRepo.On("UpdateQuantities", mock.Anything, mock.Anything, item).Return(nil)
	// A concurrent worker won the insert; the unique constraint fires
	mockRepo.On("CreateReservation", mock.Anything, mock.Anything, mock.Anything).Return(repository.ErrDuplicateReservation)
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(true)).Return(nil)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert: losing the race still records an idempotent success
	assert.NoError(t, err)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleReserve_InfraFailureFallback(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items:         []models.OrderItem{{ProductID: "P1", Qty: 4}},
	}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return(nil, assert.AnError)
	// Fallback notifier writes a failure event outside the failed transaction
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(false)).Return(nil)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert: the failure was recorded, so the command is done
	assert.NoError(t, err)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleReserve_FallbackFailure(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items:         []models.OrderItem{{ProductID: "P1", Qty: 4}},
	}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return(nil, assert.AnError)
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(false)).Return(assert.AnError)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert: no terminal event could be recorded, so the error propagates
	// and the command stays uncommitted for redelivery
	assert.Error(t, err)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleCompensate_RestoresQuantities(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)
	mockCache := new(MockCacheRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, mockCache)

	cmd := &models.CompensateInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
	}

	reservations := []models.Reservation{
		{ReservationID: uuid.New(), OrderID: "order-1", ProductID: "P1", Qty: 4},
		{ReservationID: uuid.New(), OrderID: "order-1", ProductID: "P2", Qty: 2},
	}
	item1 := &models.InventoryItem{ProductID: "P1", AvailableQty: 6, ReservedQty: 4}
	item2 := &models.InventoryItem{ProductID: "P2", AvailableQty: 3, ReservedQty: 3}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return(reservations, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "P1").Return(item1, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "P2").Return(item2, nil)
	mockRepo.On("UpdateQuantities", mock.Anything, mock.Anything, item1).Return(nil)
	mockRepo.On("UpdateQuantities", mock.Anything, mock.Anything, item2).Return(nil)
	mockRepo.On("DeleteReservations", mock.Anything, mock.Anything, "order-1").Return(int64(2), nil)
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryCompensated, "order-1", compensatedPayload(true)).Return(nil)
	mockCache.On("DeleteItem", mock.Anything, mock.Anything).Return(nil).Maybe()

	// Act
	err := saga.HandleCompensate(context.Background(), cmd)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 10, item1.AvailableQty)
	assert.Equal(t, 0, item1.ReservedQty)
	assert.Equal(t, 5, item2.AvailableQty)
	assert.Equal(t, 1, item2.ReservedQty)
	mockRepo.AssertExpectations(t)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleCompensate_NoReservations(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.CompensateInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
	}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return([]models.Reservation{}, nil)
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryCompensated, "order-1", compensatedPayload(true)).Return(nil)

	// Act
	err := saga.HandleCompensate(context.Background(), cmd)

	// Assert: compensating nothing is still a success
	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "GetItemForUpdate", mock.Anything, mock.Anything, mock.Anything)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleCompensate_MissingProductSkipped(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.CompensateInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
	}

	reservations := []models.Reservation{
		{ReservationID: uuid.New(), OrderID: "order-1", ProductID: "GONE", Qty: 4},
		{ReservationID: uuid.New(), OrderID: "order-1", ProductID: "P2", Qty: 2},
	}
	item2 := &models.InventoryItem{ProductID: "P2", AvailableQty: 3, ReservedQty: 3}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return(reservations, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "GONE").Return(nil, nil)
	mockRepo.On("GetItemForUpdate", mock.Anything, mock.Anything, "P2").Return(item2, nil)
	mockRepo.On("UpdateQuantities", mock.Anything, mock.Anything, item2).Return(nil)
	mockRepo.On("DeleteReservations", mock.Anything, mock.Anything, "order-1").Return(int64(2), nil)
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryCompensated, "order-1", compensatedPayload(true)).Return(nil)

	// Act
	err := saga.HandleCompensate(context.Background(), cmd)

	// Assert: the missing product is skipped, the rest is restored
	assert.NoError(t, err)
	assert.Equal(t, 5, item2.AvailableQty)
	assert.Equal(t, 1, item2.ReservedQty)
	mockRepo.AssertExpectations(t)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleCompensate_InfraFailureFallback(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{}, mockRepo, mockOutbox, nil)

	cmd := &models.CompensateInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
	}

	mockRepo.On("GetReservationsForUpdate", mock.Anything, mock.Anything, "order-1").Return(nil, assert.AnError)
	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryCompensated, "order-1", compensatedPayload(false)).Return(nil)

	// Act
	err := saga.HandleCompensate(context.Background(), cmd)

	// Assert
	assert.NoError(t, err)
	mockOutbox.AssertExpectations(t)
}

func TestSagaService_HandleReserve_BeginTxFailure(t *testing.T) {
	// Arrange
	mockRepo := new(MockInventoryRepository)
	mockOutbox := new(MockOutboxRepository)

	saga := NewSagaService(&fakeTxManager{beginErr: assert.AnError}, mockRepo, mockOutbox, nil)

	cmd := &models.ReserveInventoryCommand{
		CorrelationID: uuid.New(),
		OrderID:       "order-1",
		Items:         []models.OrderItem{{ProductID: "P1", Qty: 4}},
	}

	mockOutbox.On("InsertEvent", mock.Anything, mock.Anything, models.EventTypeInventoryReserved, "order-1", reservedPayload(false)).Return(nil)

	// Act
	err := saga.HandleReserve(context.Background(), cmd)

	// Assert: even a failure to open the transaction ends in a recorded outcome
	assert.NoError(t, err)
	mockOutbox.AssertExpectations(t)
}
