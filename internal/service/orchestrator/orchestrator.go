package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// -----------------------------
// Job 定义
// -----------------------------

// Job 一场待执行的讨论会话
type Job struct {
	SessionRecordID uint
	EnqueuedAt      time.Time
	Timeout         time.Duration
}

// SessionExecutor 会话执行器接口
type SessionExecutor interface {
	ExecuteSession(ctx context.Context, sessionRecordID uint) error
}

// -----------------------------
// 错误定义
// -----------------------------
var (
	ErrOrchestratorStopped = errors.New("orchestrator is stopped")
	ErrQueueFull           = errors.New("job queue is full")
)

// NewSessionJob 创建会话任务，默认整场讨论预算 30 分钟
func NewSessionJob(sessionRecordID uint) *Job {
	return &Job{
		SessionRecordID: sessionRecordID,
		EnqueuedAt:      time.Now(),
		Timeout:         30 * time.Minute,
	}
}

// -----------------------------
// Orchestrator
// -----------------------------

// Orchestrator 会话编排器
// 多场会话相互独立，由协程池并发执行；单场会话内的轮次推进由协调器负责
type Orchestrator struct {
	jobQueue *jobQueue
	pool     *ants.Pool
	executor SessionExecutor

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewOrchestrator(maxWorkers int, executor SessionExecutor) (*Orchestrator, error) {
	ctx, cancel := context.WithCancel(context.Background())

	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(1000),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		cancel()
		klog.Errorf("ants pool initialization failed: %v", err)
		return nil, err
	}

	return &Orchestrator{
		jobQueue: newJobQueue(120),
		pool:     pool,
		executor: executor,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (o *Orchestrator) Start() {
	go o.dispatchLoop()
}

// Stop 优雅停机：不再接收新会话，等待在跑的会话结束
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		klog.V(6).Infof("Orchestrator stopping...")

		o.cancel()
		o.jobQueue.Close()

		running := o.pool.Running()
		if running > 0 {
			klog.V(6).Infof("Waiting for %d running sessions to complete", running)
		}

		// 覆盖单场会话 30 分钟的预算
		timeout := 35 * time.Minute
		if err := o.pool.ReleaseTimeout(timeout); err != nil {
			klog.Warningf("Timeout after %v: some running sessions may be forced to stop", timeout)
		}

		klog.V(6).Infof("Orchestrator stopped completely")
	})
}

// EnqueueJob 会话入队
func (o *Orchestrator) EnqueueJob(job *Job) error {
	select {
	case <-o.ctx.Done():
		return ErrOrchestratorStopped
	default:
	}

	if err := o.jobQueue.Enqueue(job); err != nil {
		if errors.Is(err, ErrQueueFull) {
			klog.Warningf("Job queue full: sessionRecordID=%d", job.SessionRecordID)
		}
		return err
	}
	klog.V(6).Infof("Session enqueued: sessionRecordID=%d", job.SessionRecordID)
	return nil
}

// -----------------------------
// Dispatch Loop
// -----------------------------
func (o *Orchestrator) dispatchLoop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		default:
			job, ok := o.jobQueue.Dequeue()
			if !ok {
				continue
			}
			if err := o.pool.Submit(func() {
				o.executeJob(job)
			}); err != nil {
				klog.Errorf("提交会话到协程池失败: sessionRecordID=%d, err=%v", job.SessionRecordID, err)
			}
		}
	}
}

// executeJob 执行一场会话
// 会话失败会记录在会话自身的状态上，编排器不做重跑
// 用户取消走协调器的协作式标志位，这里的 ctx 只负责停机和整场预算
func (o *Orchestrator) executeJob(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Session panic recovered: sessionRecordID=%d, err=%v", job.SessionRecordID, r)
		}
	}()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(o.ctx, timeout)
	defer cancel()

	if err := o.executor.ExecuteSession(ctx, job.SessionRecordID); err != nil {
		klog.Errorf("会话执行失败: sessionRecordID=%d, err=%v", job.SessionRecordID, err)
		return
	}
	klog.V(6).Infof("Session completed: sessionRecordID=%d", job.SessionRecordID)
}

// -----------------------------
// Queue Status
// -----------------------------
type QueueStatus struct {
	QueueLength    int `json:"queue_length"`
	ActiveSessions int `json:"active_sessions"`
}

func (o *Orchestrator) GetQueueStatus() *QueueStatus {
	return &QueueStatus{
		QueueLength:    o.jobQueue.Len(),
		ActiveSessions: o.pool.Running(),
	}
}

// -----------------------------
// JobQueue (FIFO) + Reject New
// -----------------------------
type jobQueue struct {
	maxSize int
	items   []*Job
	mutex   sync.Mutex
	cond    *sync.Cond
	closed  bool
}

func newJobQueue(maxSize int) *jobQueue {
	q := &jobQueue{
		maxSize: maxSize,
		items:   make([]*Job, 0, maxSize),
	}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *jobQueue) Enqueue(job *Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrOrchestratorStopped
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrQueueFull // Reject New
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return nil
}

func (q *jobQueue) Dequeue() (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

func (q *jobQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

func (q *jobQueue) Close() {
	q.mutex.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mutex.Unlock()
}
