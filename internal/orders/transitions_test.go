package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTableExhaustive(t *testing.T) {
	legal := map[Status]map[Status]bool{
		StatusOrdered:  {StatusPending: true},
		StatusPending:  {StatusOrdered: true, StatusReceived: true},
		StatusReceived: {StatusFinished: true, StatusAvoir: true},
		StatusFinished: {StatusReceived: true, StatusArchived: true},
		StatusAvoir:    {StatusReceived: true, StatusFinished: true},
	}
	ctx := context.Background()
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			svc, repo, _ := newTestService(t)
			id := repo.seedOrder("Cerp", from)

			got, err := svc.Transition(ctx, id, to)
			if legal[from][to] {
				require.NoError(t, err, "%s -> %s", from, to)
				require.Equal(t, to, got.Status)
				require.Equal(t, to, repo.orders[id].Status)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
				require.Equal(t, from, repo.orders[id].Status)
			}
			require.Equal(t, legal[from][to], CanTransition(from, to))
		}
	}
}

func TestArchivedIsTerminal(t *testing.T) {
	require.Empty(t, NextStatuses(StatusArchived))
	for _, to := range AllStatuses {
		require.False(t, CanTransition(StatusArchived, to))
	}
}

func TestReceivedCannotJumpToArchived(t *testing.T) {
	svc, repo, _ := newTestService(t)
	id := repo.seedOrder("Cerp", StatusReceived)
	_, err := svc.Transition(context.Background(), id, StatusArchived)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionErrors(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, err := svc.Transition(context.Background(), 404, StatusPending)
	require.ErrorIs(t, err, ErrNotFound)

	id := repo.seedOrder("Cerp", StatusOrdered)
	_, err = svc.Transition(context.Background(), id, Status("SHIPPED"))
	require.ErrorIs(t, err, ErrValidation)
}

func TestNextStatusesIsACopy(t *testing.T) {
	next := NextStatuses(StatusPending)
	next[0] = StatusArchived
	require.Equal(t, []Status{StatusOrdered, StatusReceived}, NextStatuses(StatusPending))
}

func TestTransitionRechecksLockedStatus(t *testing.T) {
	svc, repo, _ := newTestService(t)
	id := repo.seedOrder("Cerp", StatusFinished)
	repo.beforeTx = func(r *memoryOrderRepo) {
		o := r.orders[id]
		o.Status = StatusArchived
		r.orders[id] = o
	}

	_, err := svc.Transition(context.Background(), id, StatusReceived)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, StatusArchived, repo.orders[id].Status)
}

func TestLineEditsRecheckLockedStatus(t *testing.T) {
	svc, repo, cat := newTestService(t)
	cat.add(1, 10, "Cerp", "Doliprane", "2.00")
	id := repo.seedOrder("Cerp", StatusOrdered)
	repo.beforeTx = func(r *memoryOrderRepo) {
		o := r.orders[id]
		o.Status = StatusReceived
		r.orders[id] = o
	}

	_, err := svc.AddLine(context.Background(), id, 1, 2)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Empty(t, repo.orders[id].Lines)
}
