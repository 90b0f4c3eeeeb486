// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package event

import (
	"context"
	"sync"
	"time"
)

// Subscription represents a stream of events. The carrier of the events is
// typically a channel, but isn't part of the interface.
//
// Subscriptions can fail while in progress, for example if the network
// connection backing them is lost. Subscriptions notify the failure by
// sending an error on the channel returned by Err. The Err channel is
// closed when the subscription ends or Unsubscribe is called.
type Subscription interface {
	Err() <-chan error // returns the error channel
	Unsubscribe()       // cancels sending of events, closing the error channel
}

// NewSubscription runs a producer function as a subscription in a new
// goroutine. The channel given to the producer is closed when Unsubscribe is
// called. If fn returns an error, it is sent on the subscription's error
// channel.
func NewSubscription(producer func(<-chan struct{}) error) Subscription {
	s := &funcSub{unsub: make(chan struct{}), err: make(chan error, 1)}
	go func() {
		defer close(s.err)
		err := producer(s.unsub)
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.unsubscribed {
			if err != nil {
				s.err <- err
			}
			s.unsubscribed = true
		}
	}()
	return s
}

type funcSub struct {
	unsub        chan struct{}
	err          chan error
	mu           sync.Mutex
	unsubscribed bool
}

func (s *funcSub) Unsubscribe() {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		return
	}
	s.unsubscribed = true
	close(s.unsub)
	s.mu.Unlock()
	<-s.err
}

func (s *funcSub) Err() <-chan error {
	return s.err
}

// Resubscribe calls fn repeatedly to keep a subscription established. When
// the subscription is lost, Resubscribe calls fn again right away. When fn
// itself fails, the next call waits a retry delay that starts at 1ms and
// doubles on each consecutive failure, capped at backoffDelay. The wait can
// be canceled by calling Unsubscribe on the returned subscription.
//
// The produced subscription's Err channel is closed when fn has been called
// to completion, either because the context has been canceled or because the
// last subscription fn produced was closed cleanly.
func Resubscribe(backoffDelay time.Duration, fn ResubscribeFunc) Subscription {
	s := &resubscribeSub{
		gap:   backoffDelay,
		fn:    fn,
		err:   make(chan error),
		unsub: make(chan struct{}),
	}
	go s.loop()
	return s
}

// A ResubscribeFunc attempts to establish a subscription.
type ResubscribeFunc func(context.Context) (Subscription, error)

type resubscribeSub struct {
	fn        ResubscribeFunc
	err       chan error
	unsub     chan struct{}
	unsubOnce sync.Once
	gap       time.Duration
}

func (s *resubscribeSub) Unsubscribe() {
	s.unsubOnce.Do(func() {
		s.unsub <- struct{}{}
		<-s.err
	})
}

func (s *resubscribeSub) Err() <-chan error {
	return s.err
}

func (s *resubscribeSub) loop() {
	defer close(s.err)
	var done bool
	for !done {
		sub := s.subscribe()
		if sub == nil {
			break
		}
		done = s.waitForError(sub)
		sub.Unsubscribe()
	}
}

// subscribe calls fn until it succeeds or an Unsubscribe request arrives,
// applying an exponential backoff between retries capped at the gap
// duration given to Resubscribe.
func (s *resubscribeSub) subscribe() Subscription {
	subscribed := make(chan error)
	var sub Subscription
	retryDelay := 1 * time.Millisecond
	for {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			rsub, err := s.fn(ctx)
			cancel()
			sub = rsub
			select {
			case subscribed <- err:
			case <-s.unsub:
			}
		}()
		select {
		case err := <-subscribed:
			if err != nil {
				select {
				case <-time.After(retryDelay):
					retryDelay *= 2
					if retryDelay > s.gap {
						retryDelay = s.gap
					}
					continue
				case <-s.unsub:
					return nil
				}
			}
			return sub
		case <-s.unsub:
			cancel()
			return nil
		}
	}
}

func (s *resubscribeSub) waitForError(sub Subscription) bool {
	defer sub.Unsubscribe()
	select {
	case <-s.unsub:
		return true
	case err, ok := <-sub.Err():
		return !ok || err == nil
	}
}
