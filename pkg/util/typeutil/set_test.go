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

package typeutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	set := NewSet[uint64](3, 1, 2)
	assert.True(t, set.Contain(1, 2, 3))
	assert.False(t, set.Contain(4))
	assert.Equal(t, []uint64{1, 2, 3}, Sorted(set))

	clone := set.Clone()
	set.Remove(1)
	assert.Equal(t, 2, set.Len())
	assert.Equal(t, 3, clone.Len())

	set.Clear()
	assert.Equal(t, 0, set.Len())
}

func TestConcurrentSet(t *testing.T) {
	set := NewConcurrentSet[string]()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if set.Insert("pkg.User") {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, set.Len())
	assert.True(t, set.Contain("pkg.User"))

	var seen []string
	set.Range(func(e string) bool {
		seen = append(seen, e)
		return true
	})
	assert.Equal(t, []string{"pkg.User"}, seen)

	assert.True(t, set.TryRemove("pkg.User"))
	assert.False(t, set.TryRemove("pkg.User"))
}
