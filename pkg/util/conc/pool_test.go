// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPool(t *testing.T) {
	pool := NewDefaultPool[int]()
	defer pool.Release()

	futures := make([]*Future[int], 0, 16)
	for i := 0; i < 16; i++ {
		i := i
		futures = append(futures, pool.Submit(func() (int, error) {
			return i * 2, nil
		}))
	}
	require.NoError(t, AwaitAll(futures...))
	for i, f := range futures {
		assert.Equal(t, i*2, f.Value())
		assert.True(t, f.OK())
	}
	assert.Greater(t, pool.Cap(), 0)
}

func TestPoolError(t *testing.T) {
	pool := NewPool[struct{}](2)
	defer pool.Release()

	errBoom := errors.New("boom")
	ok := pool.Submit(func() (struct{}, error) { return struct{}{}, nil })
	bad := pool.Submit(func() (struct{}, error) { return struct{}{}, errBoom })

	err := AwaitAll(ok, bad)
	assert.ErrorIs(t, err, errBoom)
	_, err = bad.Await()
	assert.ErrorIs(t, err, errBoom)
	<-ok.Inner()
}

func TestPoolPreHandler(t *testing.T) {
	called := atomic.NewInt32(0)
	pool := NewPool[int](1, WithPreHandler(func() { called.Inc() }), WithExpiryDuration(0), WithPreAlloc(false))
	defer pool.Release()

	v, err := pool.Submit(func() (int, error) { return 7, nil }).Await()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(1), called.Load())
}

func TestPoolConcealPanic(t *testing.T) {
	pool := NewPool[int](1, WithConcealPanic(true))
	defer pool.Release()

	f := pool.Submit(func() (int, error) { panic("generation exploded") })
	assert.Error(t, f.Err())
}

func TestPoolPanicHandler(t *testing.T) {
	caught := make(chan any, 1)
	pool := NewPool[int](2, WithDisablePurge(true), WithPanicHandler(func(v any) { caught <- v }))
	defer pool.Release()

	f := pool.Submit(func() (int, error) { panic("resolve failed") })
	assert.ErrorContains(t, f.Err(), "resolve failed")
	assert.Equal(t, "resolve failed", <-caught)

	v, err := pool.Submit(func() (int, error) { return 3, nil }).Await()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
