package config

import (
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"admate-rag-go/pkg/log"
)

// Provider 提供当前生效的配置快照。
// 调用方应在一次请求开始时取一次快照，并在整个请求内只使用它。
type Provider interface {
	Current() *Config
}

// Holder 以原子指针持有当前配置，更新时整体替换，从不原地修改字段。
type Holder struct {
	current atomic.Pointer[Config]
}

// NewHolder 用一份已校验的配置创建 Holder。
func NewHolder(cfg *Config) *Holder {
	h := &Holder{}
	h.current.Store(cfg)
	return h
}

// Current 返回当前配置快照，调用方不得修改它。
func (h *Holder) Current() *Config {
	return h.current.Load()
}

// Swap 校验并发布一份新配置。
// 向量维度、embedding 模型与存储后端在进程生命周期内固定，变更这些字段需要重启。
func (h *Holder) Swap(next *Config) error {
	if next == nil {
		return fmt.Errorf("配置不能为空")
	}
	if err := next.Validate(); err != nil {
		return err
	}
	prev := h.current.Load()
	if prev != nil {
		if prev.Embedding.Provider != next.Embedding.Provider ||
			prev.Embedding.Model != next.Embedding.Model ||
			prev.Embedding.Dimensions != next.Embedding.Dimensions {
			return fmt.Errorf("embedding 配置 (%s/%s/%d) 不支持热更新，请重启服务",
				next.Embedding.Provider, next.Embedding.Model, next.Embedding.Dimensions)
		}
		if prev.VectorStore.Backend != next.VectorStore.Backend {
			return fmt.Errorf("向量存储后端 %q 不支持热更新，请重启服务", next.VectorStore.Backend)
		}
	}
	h.current.Store(next)
	return nil
}

// Watch 监听配置文件变化，每次变化都会完整重新解析并尝试 Swap。
// 解析或校验失败时保留旧配置。
func (h *Holder) Watch(configPath string) error {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			log.Errorf("[Config] 配置文件 %s 重新加载失败，继续使用旧配置: %v", e.Name, err)
			return
		}
		if err := h.Swap(next); err != nil {
			log.Warnf("[Config] 拒绝应用新配置: %v", err)
			return
		}
		log.Infof("[Config] 配置已重新加载: %s", e.Name)
	})
	v.WatchConfig()
	return nil
}
