package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/sage-erp/pharmacy/internal/jobs"
	"github.com/sage-erp/pharmacy/internal/orders"
	"github.com/sage-erp/pharmacy/internal/shared"
)

type memoryArchiveRepo struct {
	orders   map[int64]orders.Order
	archives map[int64]ArchivedOrder
	receipts map[int64]orders.Receipt
	failOn   map[int64]bool
	nextID   int64
	// afterMark runs once an order is marked ARCHIVED.
	afterMark func(orderID int64)
}

type memoryArchiveTx struct {
	repo *memoryArchiveRepo
}

func newMemoryArchiveRepo() *memoryArchiveRepo {
	return &memoryArchiveRepo{
		orders:   make(map[int64]orders.Order),
		archives: make(map[int64]ArchivedOrder),
		receipts: make(map[int64]orders.Receipt),
		failOn:   make(map[int64]bool),
	}
}

func (r *memoryArchiveRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryArchiveRepo) seedOrder(provider string, status orders.Status) int64 {
	id := r.id()
	r.orders[id] = orders.Order{ID: id, ProviderName: provider, Status: status, CreatedAt: time.Date(2024, 1, int(id), 0, 0, 0, 0, time.UTC)}
	return id
}

func (r *memoryArchiveRepo) seedReceipt(orderID int64) int64 {
	id := r.id()
	oid := orderID
	r.receipts[id] = orders.Receipt{ID: id, Filename: "r.pdf", OrderID: &oid}
	return id
}

func (r *memoryArchiveRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapOrders := make(map[int64]orders.Order, len(r.orders))
	for k, v := range r.orders {
		snapOrders[k] = v
	}
	snapArchives := make(map[int64]ArchivedOrder, len(r.archives))
	for k, v := range r.archives {
		snapArchives[k] = v
	}
	snapReceipts := make(map[int64]orders.Receipt, len(r.receipts))
	for k, v := range r.receipts {
		snapReceipts[k] = v
	}
	if err := fn(ctx, &memoryArchiveTx{repo: r}); err != nil {
		r.orders, r.archives, r.receipts = snapOrders, snapArchives, snapReceipts
		return err
	}
	return nil
}

func (r *memoryArchiveRepo) FinishedOrders(ctx context.Context) ([]orders.Order, error) {
	var out []orders.Order
	for id := int64(1); id <= r.nextID; id++ {
		if o, ok := r.orders[id]; ok && o.Status == orders.StatusFinished {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memoryArchiveRepo) ListArchives(ctx context.Context) ([]ArchivedOrder, error) {
	var out []ArchivedOrder
	for id := int64(1); id <= r.nextID; id++ {
		if _, ok := r.archives[id]; ok {
			a, _ := r.GetArchive(ctx, id)
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryArchiveRepo) GetArchive(ctx context.Context, id int64) (ArchivedOrder, error) {
	a, ok := r.archives[id]
	if !ok {
		return ArchivedOrder{}, ErrNotFound
	}
	a.Receipts = nil
	for rid := int64(1); rid <= r.nextID; rid++ {
		if rc, ok := r.receipts[rid]; ok && rc.ArchivedOrderID != nil && *rc.ArchivedOrderID == id {
			a.Receipts = append(a.Receipts, rc)
		}
	}
	return a, nil
}

func (tx *memoryArchiveTx) LockOrderStatus(ctx context.Context, orderID int64) (orders.Status, error) {
	o, ok := tx.repo.orders[orderID]
	if !ok {
		return "", orders.ErrNotFound
	}
	return o.Status, nil
}

func (tx *memoryArchiveTx) CreateArchive(ctx context.Context, a ArchivedOrder) (int64, error) {
	a.ID = tx.repo.id()
	a.CreatedAt = time.Now().UTC()
	tx.repo.archives[a.ID] = a
	return a.ID, nil
}

func (tx *memoryArchiveTx) MoveReceipts(ctx context.Context, orderID, archiveID int64) (int, error) {
	n := 0
	for id, rc := range tx.repo.receipts {
		if rc.OrderID != nil && *rc.OrderID == orderID {
			aid := archiveID
			rc.OrderID, rc.ArchivedOrderID = nil, &aid
			tx.repo.receipts[id] = rc
			n++
		}
	}
	return n, nil
}

func (tx *memoryArchiveTx) MarkArchived(ctx context.Context, orderID int64) error {
	if tx.repo.failOn[orderID] {
		return errors.New("disk full")
	}
	o := tx.repo.orders[orderID]
	o.Status = orders.StatusArchived
	tx.repo.orders[orderID] = o
	if tx.repo.afterMark != nil {
		tx.repo.afterMark(orderID)
	}
	return nil
}

func (tx *memoryArchiveTx) LockArchive(ctx context.Context, id int64) error {
	if _, ok := tx.repo.archives[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func (tx *memoryArchiveTx) ReplaceReceipts(ctx context.Context, archiveID int64, receiptIDs []int64) error {
	keep := make(map[int64]bool, len(receiptIDs))
	for _, id := range receiptIDs {
		if _, ok := tx.repo.receipts[id]; !ok {
			return ErrNotFound
		}
		keep[id] = true
	}
	for id, rc := range tx.repo.receipts {
		switch {
		case keep[id]:
			aid := archiveID
			rc.OrderID, rc.ArchivedOrderID = nil, &aid
		case rc.ArchivedOrderID != nil && *rc.ArchivedOrderID == archiveID:
			rc.ArchivedOrderID = nil
		}
		tx.repo.receipts[id] = rc
	}
	return nil
}

func (tx *memoryArchiveTx) DeleteArchive(ctx context.Context, id int64) error {
	if _, ok := tx.repo.archives[id]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.archives, id)
	for rid, rc := range tx.repo.receipts {
		if rc.ArchivedOrderID != nil && *rc.ArchivedOrderID == id {
			rc.ArchivedOrderID = nil
			tx.repo.receipts[rid] = rc
		}
	}
	return nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepArchivesFinishedOrders(t *testing.T) {
	repo := newMemoryArchiveRepo()
	finished := repo.seedOrder("Cerp", orders.StatusFinished)
	received := repo.seedOrder("Ocp", orders.StatusReceived)
	receipt := repo.seedReceipt(finished)

	sweeper := NewSweeper(repo, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), discardLogger(), 0)
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{finished}, result.Archived)
	require.Empty(t, result.Failed)

	require.Equal(t, orders.StatusArchived, repo.orders[finished].Status)
	require.Equal(t, orders.StatusReceived, repo.orders[received].Status)
	require.Len(t, repo.archives, 1)

	archives, err := repo.ListArchives(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Cerp", archives[0].ProviderName)
	require.Equal(t, repo.orders[finished].CreatedAt, archives[0].OrderCreatedAt)
	require.Len(t, archives[0].Receipts, 1)
	require.Equal(t, receipt, archives[0].Receipts[0].ID)
	require.Nil(t, archives[0].Receipts[0].OrderID)
}

func TestSweepIsIdempotent(t *testing.T) {
	repo := newMemoryArchiveRepo()
	repo.seedOrder("Cerp", orders.StatusFinished)
	sweeper := NewSweeper(repo, nil, nil, discardLogger(), 0)

	_, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Archived)
	require.Len(t, repo.archives, 1)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	repo := newMemoryArchiveRepo()
	bad := repo.seedOrder("Cerp", orders.StatusFinished)
	good := repo.seedOrder("Ocp", orders.StatusFinished)
	repo.seedReceipt(bad)
	repo.failOn[bad] = true
	sweeper := NewSweeper(repo, nil, nil, discardLogger(), 0)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{good}, result.Archived)
	require.Equal(t, []int64{bad}, result.Failed)
	require.Equal(t, orders.StatusFinished, repo.orders[bad].Status)
	require.Len(t, repo.archives, 1)
	for _, rc := range repo.receipts {
		require.NotNil(t, rc.OrderID)
	}

	delete(repo.failOn, bad)
	result, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{bad}, result.Archived)
	require.Len(t, repo.archives, 2)
}

func TestSweepCountsArchivedBeforeCancel(t *testing.T) {
	repo := newMemoryArchiveRepo()
	first := repo.seedOrder("Cerp", orders.StatusFinished)
	second := repo.seedOrder("Ocp", orders.StatusFinished)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo.afterMark = func(int64) { cancel() }

	reg := prometheus.NewRegistry()
	sweeper := NewSweeper(repo, nil, jobmetrics.NewMetrics(reg), discardLogger(), 0)
	result, err := sweeper.Sweep(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []int64{first}, result.Archived)
	require.Equal(t, orders.StatusFinished, repo.orders[second].Status)

	expected := `
# HELP pharmacy_orders_archived_total Finished orders moved to the archive.
# TYPE pharmacy_orders_archived_total counter
pharmacy_orders_archived_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "pharmacy_orders_archived_total"))
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := shared.NewRedisLocker(client)

	repo := newMemoryArchiveRepo()
	order := repo.seedOrder("Cerp", orders.StatusFinished)
	sweeper := NewSweeper(repo, locker, nil, discardLogger(), time.Minute)

	release, err := locker.Acquire(context.Background(), shared.ArchiveSweepLockKey, time.Minute)
	require.NoError(t, err)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.True(t, result.Skipped)
	require.Equal(t, orders.StatusFinished, repo.orders[order].Status)

	require.NoError(t, release(context.Background()))
	result, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	require.False(t, result.Skipped)
	require.Equal(t, []int64{order}, result.Archived)
	require.False(t, mr.Exists(shared.ArchiveSweepLockKey))
}

func TestServiceSetReceipts(t *testing.T) {
	repo := newMemoryArchiveRepo()
	order := repo.seedOrder("Cerp", orders.StatusFinished)
	first := repo.seedReceipt(order)
	live := repo.seedOrder("Ocp", orders.StatusOrdered)
	second := repo.seedReceipt(live)
	_, err := NewSweeper(repo, nil, nil, discardLogger(), 0).Sweep(context.Background())
	require.NoError(t, err)

	audit := &recordingAudit{}
	svc := NewService(repo, audit, discardLogger())
	archives, err := svc.List(context.Background())
	require.NoError(t, err)
	archiveID := archives[0].ID

	updated, err := svc.SetReceipts(context.Background(), archiveID, []int64{second})
	require.NoError(t, err)
	require.Len(t, updated.Receipts, 1)
	require.Equal(t, second, updated.Receipts[0].ID)
	require.Nil(t, repo.receipts[second].OrderID)
	require.Nil(t, repo.receipts[first].ArchivedOrderID)

	_, err = svc.SetReceipts(context.Background(), archiveID, []int64{999})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.SetReceipts(context.Background(), 999, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.SetReceipts(context.Background(), archiveID, []int64{-1})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.Delete(context.Background(), archiveID))
	require.Nil(t, repo.receipts[second].ArchivedOrderID)
	require.Equal(t, []string{"ARCHIVE_RECEIPTS", "ARCHIVE_DELETE"}, audit.actions)
}

func TestHandlerArchives(t *testing.T) {
	repo := newMemoryArchiveRepo()
	repo.seedOrder("Cerp", orders.StatusFinished)
	_, err := NewSweeper(repo, nil, nil, discardLogger(), 0).Sweep(context.Background())
	require.NoError(t, err)

	h := NewHandler(discardLogger(), NewService(repo, nil, discardLogger()))
	r := chi.NewRouter()
	r.Route("/archives", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archives", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"providerName":"Cerp"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/archives/2/receipts", strings.NewReader(`{"receiptIds":[]}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/archives/2", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archives/2", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/archives/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
