package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrTaskCancelled 协作式取消后任务以该错误结束
var ErrTaskCancelled = errors.New("task cancelled")

// TaskState 在运行中的任务与外部取消者之间共享取消标记。
// 任务需在每次 I/O 挂起点之后自行检查 Cancelled 并中止。
type TaskState struct {
	cancelled atomic.Bool
}

func (s *TaskState) Cancel()         { s.cancelled.Store(true) }
func (s *TaskState) Cancelled() bool { return s.cancelled.Load() }

// Err 取消已发生时返回 ErrTaskCancelled，便于在批次间做检查
func (s *TaskState) Err() error {
	if s.Cancelled() {
		return ErrTaskCancelled
	}
	return nil
}

type TaskFunc[T any] func(ctx context.Context, state *TaskState) (T, error)

type flightTask[T any] struct {
	state *TaskState
	done  chan struct{}
	val   T
	err   error
}

// Flight 按 key 去重的单飞执行器：同一 key 同时最多一个任务在跑，
// 任务进行期间到达的调用者共享同一次执行的结果或错误。
// 进程内内存结构，不落盘；重启后在途保证丢失，但操作可被下一次事件安全重触发。
type Flight[T any] struct {
	mu    sync.Mutex
	tasks map[string]*flightTask[T]
}

func NewFlight[T any]() *Flight[T] {
	return &Flight[T]{tasks: make(map[string]*flightTask[T])}
}

// Do 若 key 空闲则启动 fn；若已有任务在飞则等待其结束并返回同一结果。
// fn 抛错时所有等待者收到同一错误，key 回到空闲，下一次调用重新执行。
func (f *Flight[T]) Do(ctx context.Context, key string, fn TaskFunc[T]) (T, error) {
	f.mu.Lock()
	if t, ok := f.tasks[key]; ok {
		f.mu.Unlock()
		return f.wait(ctx, t)
	}
	t := &flightTask[T]{state: &TaskState{}, done: make(chan struct{})}
	f.tasks[key] = t
	f.mu.Unlock()

	return f.run(ctx, key, t, fn)
}

// Replace 取消 key 上的在途任务，等其排空后以最新参数重新执行。
// 订阅扇出用它实现 last-intent-wins。
func (f *Flight[T]) Replace(ctx context.Context, key string, fn TaskFunc[T]) (T, error) {
	for {
		f.mu.Lock()
		if t, ok := f.tasks[key]; ok {
			t.state.Cancel()
			f.mu.Unlock()
			select {
			case <-t.done:
			case <-ctx.Done():
				var zero T
				return zero, ctx.Err()
			}
			continue
		}
		t := &flightTask[T]{state: &TaskState{}, done: make(chan struct{})}
		f.tasks[key] = t
		f.mu.Unlock()

		return f.run(ctx, key, t, fn)
	}
}

// Cancel 对在途任务置取消标记；key 空闲时是 no-op。
// 不强制中断，任务在下一个检查点感知并中止。
func (f *Flight[T]) Cancel(key string) {
	f.mu.Lock()
	if t, ok := f.tasks[key]; ok {
		t.state.Cancel()
	}
	f.mu.Unlock()
}

// Running 仅供观测：key 是否有任务在飞
func (f *Flight[T]) Running(key string) bool {
	f.mu.Lock()
	_, ok := f.tasks[key]
	f.mu.Unlock()
	return ok
}

func (f *Flight[T]) run(ctx context.Context, key string, t *flightTask[T], fn TaskFunc[T]) (T, error) {
	t.val, t.err = fn(ctx, t.state)

	f.mu.Lock()
	delete(f.tasks, key)
	f.mu.Unlock()
	close(t.done)

	return t.val, t.err
}

func (f *Flight[T]) wait(ctx context.Context, t *flightTask[T]) (T, error) {
	select {
	case <-t.done:
		return t.val, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
