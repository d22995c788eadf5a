/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package limiters holds small reusable rate-limiting primitives shared by
// any component that needs to cap a caller's request rate.
package limiters

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrClosed is returned by TakeContext once the limiter has been closed.
var ErrClosed = errors.New("limiters: rate bucket is closed")

// Rate is a token-bucket limiter built on golang.org/x/time/rate. Take is
// expected to be called once per unit of work; it blocks until a token is
// available, and fails at once after the bucket has been closed. If
// burstSize is 0, all methods are no-ops that always succeed.
type Rate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	closed  bool
}

// NewRate returns a limiter allowing burstSize events, replenished one
// token every interval.
func NewRate(burstSize int, interval time.Duration) *Rate {
	limit := rate.Every(interval)
	if burstSize == 0 {
		limit = rate.Inf
	}
	return &Rate{limiter: rate.NewLimiter(limit, burstSize)}
}

// Take blocks until a token is available, returning false if the limiter
// has already been closed.
func (r *Rate) Take() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	if err := r.limiter.Wait(context.Background()); err != nil {
		return false
	}
	return true
}

// TakeContext is Take with a caller-supplied context. It returns an error
// instead of a token when ctx ends, or when ctx's deadline would pass
// before a token is available, and ErrClosed once the limiter has been
// closed.
func (r *Rate) TakeContext(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	return r.limiter.WaitN(ctx, 1)
}

// Close causes every later Take/TakeContext call to fail. A call already
// waiting for a token holds the limiter's lock, so Close blocks until that
// call returns; the waiting call itself is not failed.
func (r *Rate) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
