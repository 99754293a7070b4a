package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type scratchBuf struct{ id int }

func TestFixedPool_TableDriven(t *testing.T) {
	type args struct {
		capacity uint
	}
	type want struct {
		newCountMin int
		newCountMax int
	}

	tests := []struct {
		name  string
		args  args
		setup func(t *testing.T, p *fixed[*scratchBuf], newCount *int32) (extra any)
		run   func(t *testing.T, p *fixed[*scratchBuf], extra any, newCount *int32) (gotCreated int, gotVals []any)
		want  want
	}{
		{
			name: "Get creates up to capacity via newFn; then blocks until Put",
			args: args{capacity: 2},
			run: func(t *testing.T, p *fixed[*scratchBuf], _ any, newCount *int32) (int, []any) {
				b1 := p.Get()
				b2 := p.Get()
				if b1 == nil || b2 == nil || b1 == b2 {
					t.Fatalf("expected two distinct buffers, got %v and %v", b1, b2)
				}

				gotCh := make(chan *scratchBuf, 1)
				go func() { gotCh <- p.Get() }()

				select {
				case <-gotCh:
					t.Fatalf("third Get should block until Put; returned early")
				case <-time.After(100 * time.Millisecond):
				}

				p.Put(b1)

				select {
				case got := <-gotCh:
					if got != b1 {
						t.Fatalf("expected blocked Get to receive reused buffer b1; got %v", got)
					}
				case <-time.After(200 * time.Millisecond):
					t.Fatalf("blocked Get did not resume after Put")
				}

				created := int(atomic.LoadInt32(newCount))
				return created, []any{b1, b2}
			},
			want: want{newCountMin: 2, newCountMax: 2},
		},
		{
			name: "Get reuses buffer from available even if capacity not yet reached",
			args: args{capacity: 3},
			setup: func(_ *testing.T, p *fixed[*scratchBuf], _ *int32) any {
				p.available <- &scratchBuf{id: 42}
				return nil
			},
			run: func(t *testing.T, p *fixed[*scratchBuf], _ any, newCount *int32) (int, []any) {
				got := p.Get()
				if got == nil || got.id != 42 {
					t.Fatalf("expected to reuse seeded buffer id=42, got %#v", got)
				}
				created := int(atomic.LoadInt32(newCount))
				if created != 0 {
					t.Fatalf("expected no new buffer creation, newCount=%d", created)
				}
				return created, []any{got}
			},
			want: want{newCountMin: 0, newCountMax: 0},
		},
		{
			name: "Put then Get returns the same instance",
			args: args{capacity: 1},
			run: func(t *testing.T, p *fixed[*scratchBuf], _ any, _ *int32) (int, []any) {
				b := p.Get()
				p.Put(b)
				b2 := p.Get()
				if b2 != b {
					t.Fatalf("expected same instance after Put/Get; got %v vs %v", b, b2)
				}
				return 1, []any{b, b2}
			},
			want: want{newCountMin: 1, newCountMax: 1},
		},
		{
			name: "Concurrent Get/Put never creates more than capacity buffers",
			args: args{capacity: 5},
			run: func(t *testing.T, p *fixed[*scratchBuf], _ any, newCount *int32) (int, []any) {
				const goroutines = 20
				var wg sync.WaitGroup
				wg.Add(goroutines)

				for i := 0; i < goroutines; i++ {
					go func() {
						defer wg.Done()
						b := p.Get()
						time.Sleep(5 * time.Millisecond)
						p.Put(b)
					}()
				}
				wg.Wait()
				created := int(atomic.LoadInt32(newCount))
				if created > int(cap(p.all)) {
					t.Fatalf("created %d buffers, exceeds capacity %d", created, cap(p.all))
				}
				return created, nil
			},
			want: want{newCountMin: 1, newCountMax: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var counter int32
			newFn := func() *scratchBuf {
				id := int(atomic.AddInt32(&counter, 1))
				return &scratchBuf{id: id}
			}

			p := NewFixed(tt.args.capacity, newFn).(*fixed[*scratchBuf])

			if tt.setup != nil {
				tt.setup(t, p, &counter)
			}

			created, _ := tt.run(t, p, nil, &counter)
			if created < tt.want.newCountMin || created > tt.want.newCountMax {
				t.Fatalf("created=%d, want range [%d,%d]", created, tt.want.newCountMin, tt.want.newCountMax)
			}
		})
	}
}
