// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package syncx

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"

	"vibecodex.dev/vibe-codex/testutil"
)

func TestProtected(t *testing.T) {
	t.Parallel()

	t.Run("read access", func(t *testing.T) {
		p := Protect(42)
		var result int
		p.ReadAccess(func(val int) {
			result = val
		})
		testutil.AssertEqual(t, result, 42)
	})

	t.Run("write access", func(t *testing.T) {
		var i int
		p := Protect(&i)
		p.WriteAccess(func(val *int) {
			*val = 43 // Modify the value.
		})
		var result int
		p.ReadAccess(func(val *int) { result = *val }) // Verify change.
		testutil.AssertEqual(t, result, 43)
	})

	t.Run("concurrent access", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var i int
			p := Protect(&i)
			for range 100 {
				go p.WriteAccess(func(val *int) {
					*val++
				})
			}
			synctest.Wait()

			var result int
			p.ReadAccess(func(val *int) { result = *val })
			testutil.AssertEqual(t, result, 100)
		})
	})
}

func TestLazy(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var l Lazy[int]
		var count int
		var mu sync.Mutex

		f := func() int {
			mu.Lock()
			defer mu.Unlock()
			count++
			return count
		}

		v1 := l.Get(f)
		testutil.AssertEqual(t, v1, 1)

		v2 := l.Get(f)
		testutil.AssertEqual(t, v2, 1)

		testutil.AssertEqual(t, count, 1)

		var l2 Lazy[string]

		f2 := func() (string, error) {
			return "", errors.New("something went wrong")
		}

		notnil := func(err error) {
			if err == nil {
				t.Fatalf("err must not be nil")
			}
		}

		ev1, err := l2.GetErr(f2)
		testutil.AssertEqual(t, ev1, "")
		notnil(err)

		ev2, err := l2.GetErr(f2)
		testutil.AssertEqual(t, ev2, "")
		notnil(err)
	})
}

func TestCache(t *testing.T) {
	t.Parallel()

	t.Run("zero value is usable", func(t *testing.T) {
		var c Cache[string, int]
		_, ok := c.Load("missing")
		testutil.AssertEqual(t, ok, false)
	})

	t.Run("load or store keeps first value", func(t *testing.T) {
		var c Cache[string, int]
		v, loaded := c.LoadOrStore("a", 1)
		testutil.AssertEqual(t, v, 1)
		testutil.AssertEqual(t, loaded, false)

		v, loaded = c.LoadOrStore("a", 2)
		testutil.AssertEqual(t, v, 1)
		testutil.AssertEqual(t, loaded, true)

		got, ok := c.Load("a")
		testutil.AssertEqual(t, got, 1)
		testutil.AssertEqual(t, ok, true)
	})

	t.Run("concurrent stores agree on one value", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var (
				c      Cache[string, int]
				stored atomic.Int32
				wg     sync.WaitGroup
			)
			for i := range 50 {
				wg.Go(func() {
					if _, loaded := c.LoadOrStore("key", i); !loaded {
						stored.Add(1)
					}
				})
			}
			wg.Wait()
			testutil.AssertEqual(t, int(stored.Load()), 1)
		})
	})
}
