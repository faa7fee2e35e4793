package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	kl := NewKeyLock()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.Lock("session-1:contact-1")
			defer kl.Unlock("session-1:contact-1")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyLock_DifferentKeysDoNotBlock(t *testing.T) {
	kl := NewKeyLock()
	kl.Lock("key-a")
	defer kl.Unlock("key-a")

	done := make(chan struct{})
	go func() {
		kl.Lock("key-b")
		kl.Unlock("key-b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyLock_SameKeyBlocksUntilUnlock(t *testing.T) {
	kl := NewKeyLock()
	kl.Lock("key-a")

	acquired := make(chan struct{})
	go func() {
		kl.Lock("key-a")
		close(acquired)
		kl.Unlock("key-a")
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first still held")
	case <-time.After(50 * time.Millisecond):
	}

	kl.Unlock("key-a")
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second lock never acquired after unlock")
	}
}
