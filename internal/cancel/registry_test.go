package cancel

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistry(t *testing.T) {
	Convey("取消标记表", t, func() {
		r := NewRegistry()

		Convey("登记后置位可见", func() {
			h := r.Register("c1")
			So(h.Signalled(), ShouldBeFalse)
			So(r.Signal("c1"), ShouldBeTrue)
			So(h.Signalled(), ShouldBeTrue)

			select {
			case <-h.Done():
			default:
				t.Fatal("done channel not closed")
			}
			So(r.Signal("c1"), ShouldBeTrue)
		})

		Convey("未登记的键静默忽略", func() {
			So(r.Signal("missing"), ShouldBeFalse)
			So(r.Len(), ShouldEqual, 0)
		})

		Convey("注销可重复调用", func() {
			h := r.Register("c1")
			r.Unregister(h)
			r.Unregister(h)
			r.Unregister(nil)
			So(r.Len(), ShouldEqual, 0)
			So(r.Signal("c1"), ShouldBeFalse)
		})

		Convey("旧回合注销不影响新回合的登记", func() {
			old := r.Register("c1")
			cur := r.Register("c1")
			r.Unregister(old)
			So(r.Len(), ShouldEqual, 1)
			So(r.Signal("c1"), ShouldBeTrue)
			So(cur.Signalled(), ShouldBeTrue)
			So(old.Signalled(), ShouldBeFalse)
		})

		Convey("并发置位与轮询", func() {
			h := r.Register("c1")
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					r.Signal("c1")
				}()
			}
			wg.Wait()
			So(h.Signalled(), ShouldBeTrue)
		})
	})
}
