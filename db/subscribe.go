package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
)

// subscribeResync is when the medications are listed again after subscribing, catching a
// write that committed before badger registered the subscriber
var subscribeResync = time.Second

// SubscribeMedicationsForUser calls fn with the user's medications right away and again
// after every change to them. Calls to fn never overlap and never deliver an older list
// after a newer one. It blocks until ctx is done.
func (b *Badger) SubscribeMedicationsForUser(ctx context.Context, userID uuid.UUID, fn func([]*Medication)) error {
	var mu sync.Mutex
	deliver := func() error {
		mu.Lock()
		defer mu.Unlock()

		medications, err := b.ListMedicationsForUserID(userID)
		if err != nil {
			return err
		}

		fn(medications)

		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.db.Subscribe(ctx, func(*badger.KVList) error {
			return deliver()
		}, badgerPrefixKeyForMedicationUserID(userID))
	}()

	err := deliver()
	if err == nil {
		resync := time.NewTimer(subscribeResync)
		defer resync.Stop()

		select {
		case err = <-done:
			return subscribeResult(err)
		case <-resync.C:
			err = deliver()
		}
	}

	if err != nil {
		cancel()
		<-done
		return err
	}

	return subscribeResult(<-done)
}

func subscribeResult(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return err
}
