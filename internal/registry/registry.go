package registry

import (
	"errors"
	"sync"

	"github.com/weibaohui/llmchats/internal/provider"
)

// ErrDuplicateLabel 展示名在会话内重复，属于配置错误
var ErrDuplicateLabel = errors.New("duplicate participant label")

// Participant 参与讨论的模型后端，绑定转录中使用的展示名
type Participant struct {
	Label    string
	Provider provider.Provider
}

// Registry 会话的参与者登记表
// 加入顺序即每一轮的发言顺序，会话开始后不再新增
type Registry struct {
	mu      sync.Mutex
	order   []*Participant
	byLabel map[string]*Participant
	dead    map[string]bool // 被永久禁用的参与者（鉴权失败）
}

func New() *Registry {
	return &Registry{
		byLabel: make(map[string]*Participant),
		dead:    make(map[string]bool),
	}
}

// Add 登记一个参与者，展示名重复时拒绝
func (r *Registry) Add(label string, p provider.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byLabel[label]; ok {
		return ErrDuplicateLabel
	}
	participant := &Participant{Label: label, Provider: p}
	r.byLabel[label] = participant
	r.order = append(r.order, participant)
	return nil
}

// Enabled 按登记顺序返回仍然启用的参与者
func (r *Registry) Enabled() []*Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Participant, 0, len(r.order))
	for _, p := range r.order {
		if !r.dead[p.Label] {
			out = append(out, p)
		}
	}
	return out
}

// Disable 永久禁用一个参与者，后续轮次不再调用
func (r *Registry) Disable(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byLabel[label]; ok {
		r.dead[label] = true
	}
}

// Len 登记的参与者总数（含已禁用）
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Labels 按登记顺序返回全部展示名
func (r *Registry) Labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	labels := make([]string, 0, len(r.order))
	for _, p := range r.order {
		labels = append(labels, p.Label)
	}
	return labels
}
