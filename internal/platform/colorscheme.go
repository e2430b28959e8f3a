// Package platform はOSのデスクトップ環境との接点を提供する。
package platform

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ColorSchemeSource はOSのカラースキーム設定の参照と変更監視を提供する。
type ColorSchemeSource interface {
	// PrefersDark は現在のOS設定がダークを好むかを返す。
	PrefersDark(ctx context.Context) bool

	// Subscribe はダーク設定の変化をコールバックで通知する。
	// 返されたcancelを呼ぶと監視を停止する。
	Subscribe(fn func(dark bool)) (cancel func())
}

// CommandSource はgsettingsコマンドでGNOMEのcolor-schemeを参照する実装。
// D-Busの変更イベントは購読せず、ポーリングで変化を検出する。
type CommandSource struct {
	logger   *slog.Logger
	interval time.Duration
}

// NewCommandSource はCommandSourceを生成する。intervalはポーリング間隔。
func NewCommandSource(logger *slog.Logger, interval time.Duration) *CommandSource {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &CommandSource{logger: logger, interval: interval}
}

// PrefersDark はgsettingsの出力にdarkが含まれるかで判定する。
// コマンドが失敗した場合（非GNOME環境など）はライト扱いにする。
func (c *CommandSource) PrefersDark(ctx context.Context) bool {
	out, err := exec.CommandContext(ctx,
		"gsettings", "get", "org.gnome.desktop.interface", "color-scheme",
	).Output()
	if err != nil {
		c.logger.Debug("カラースキームの取得に失敗しました", slog.String("error", err.Error()))
		return false
	}
	return strings.Contains(string(out), "dark")
}

// Subscribe はポーリングループを開始し、ダーク設定が変化したときだけ通知する。
func (c *CommandSource) Subscribe(fn func(dark bool)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		last := c.PrefersDark(ctx)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dark := c.PrefersDark(ctx)
				if dark != last {
					last = dark
					fn(dark)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// StaticSource は固定値を返すColorSchemeSource。
// OS連携が不要な環境やテストで使用する。
type StaticSource struct {
	mu          sync.Mutex
	dark        bool
	subscribers []func(dark bool)
}

// NewStaticSource はStaticSourceを生成する。
func NewStaticSource(dark bool) *StaticSource {
	return &StaticSource{dark: dark}
}

// PrefersDark は設定された固定値を返す。
func (s *StaticSource) PrefersDark(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dark
}

// Subscribe はコールバックを登録する。SetDarkで通知される。
func (s *StaticSource) Subscribe(fn func(dark bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.subscribers)
	s.subscribers = append(s.subscribers, fn)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.subscribers) {
			s.subscribers[idx] = nil
		}
	}
}

// SetDark は値を更新し、変化があれば購読者に通知する。
func (s *StaticSource) SetDark(dark bool) {
	s.mu.Lock()
	if s.dark == dark {
		s.mu.Unlock()
		return
	}
	s.dark = dark
	subs := make([]func(bool), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		if fn != nil {
			fn(dark)
		}
	}
}
