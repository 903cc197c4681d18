package moderation

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"EbbFM/logger"
	apperrors "EbbFM/pkg/errors"

	"github.com/fsnotify/fsnotify"
)

// 词表文件缺失时的兜底列表
var defaultBannedTerms = []string{
	"spamlink",
	"buy followers",
}

// ContentGate 违禁词扫描
// 大小写不敏感的子串匹配，第一个命中即拒绝；
// 拒绝结果只带原因码，不把命中的词回显给调用方。
type ContentGate struct {
	mu      sync.RWMutex
	terms   []string
	watcher *fsnotify.Watcher
}

// NewContentGate 加载词表并开始监听文件变更
// 词表文件每行一个词，#开头为注释；文件缺失时退回内置列表。
func NewContentGate(path string) *ContentGate {
	g := &ContentGate{}
	g.load(path)

	if path != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			logger.Warn("banned-words watcher unavailable", logger.ErrorField(err))
			return g
		}
		if err := watcher.Add(path); err != nil {
			logger.Warn("banned-words file not watchable",
				logger.ErrorField(err), logger.String("path", path))
			watcher.Close()
			return g
		}
		g.watcher = watcher
		go g.watch(path)
	}
	return g
}

// load 读取词表
func (g *ContentGate) load(path string) {
	terms := defaultBannedTerms

	if path != "" {
		if file, err := os.Open(path); err == nil {
			defer file.Close()
			var loaded []string
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				loaded = append(loaded, strings.ToLower(line))
			}
			if len(loaded) > 0 {
				terms = loaded
			}
		} else {
			logger.Warn("banned-words file not readable, using defaults",
				logger.ErrorField(err), logger.String("path", path))
		}
	}

	g.mu.Lock()
	g.terms = terms
	g.mu.Unlock()
}

// watch 词表文件变化时热加载
func (g *ContentGate) watch(path string) {
	for {
		select {
		case event, ok := <-g.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				g.load(path)
				logger.Info("banned-words list reloaded", logger.String("path", path))
			}
		case err, ok := <-g.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("banned-words watcher error", logger.ErrorField(err))
		}
	}
}

// Close 停止文件监听
func (g *ContentGate) Close() {
	if g.watcher != nil {
		g.watcher.Close()
	}
}

// Check 扫描文本
// 命中违禁词返回POLICY_REJECTED（原因码content_policy），通过返回nil。
func (g *ContentGate) Check(text string) error {
	lowered := strings.ToLower(text)

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, term := range g.terms {
		if strings.Contains(lowered, term) {
			return apperrors.ContentRejected()
		}
	}
	return nil
}
